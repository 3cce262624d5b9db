package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/render"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Book management and job tracking",
}

// bookListing renders with the stored view preference in text mode.
type bookListing struct {
	view     string
	list     []books.Book
	progress []books.Progress
}

func (l bookListing) Text() string {
	return render.Books(l.view, l.list, l.progress, terminalWidth())
}

func (l bookListing) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.list)
}

func (l bookListing) MarshalYAML() (any, error) {
	return l.list, nil
}

var booksListView string

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if _, err := a.requireLogin(ctx); err != nil {
				return err
			}
			if err := a.coord.FetchBooks(ctx); err != nil {
				return err
			}
			view := booksListView
			if view == "" {
				v, err := a.state.ViewPreference(ctx)
				if err != nil {
					return err
				}
				view = v
			}
			return api.Output(bookListing{view: view, list: a.coord.Books(), progress: a.coord.Progress()})
		})
	},
}

var booksGetCmd = &cobra.Command{
	Use:   "get <book-id>",
	Short: "Get a book by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			b, err := a.coord.GetBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return api.Output(b)
		})
	},
}

var upload books.Upload

var booksUploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a text-based PDF as a new book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[0], err)
			}

			up := upload
			up.FileName = filepath.Base(args[0])
			up.File = f
			up.Size = info.Size()

			res, err := a.coord.CreateBook(cmd.Context(), up)
			if err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(res)
			}
			fmt.Printf("Uploaded %s (%d pages)\n", res.FileName, res.PageCount)
			return nil
		})
	},
}

var downloadOut string

var booksDownloadCmd = &cobra.Command{
	Use:   "download <book-id>",
	Short: "Download a book's PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if _, err := a.requireLogin(ctx); err != nil {
				return err
			}
			out := downloadOut
			if out == "" {
				b, err := a.coord.GetBook(ctx, args[0])
				if err != nil {
					return err
				}
				out = a.home.DownloadPath(b.ID, b.DocName)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", filepath.Dir(out), err)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			n, err := a.coord.GetBookFile(ctx, args[0], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				return err
			}
			if !api.IsStructuredOutput() {
				fmt.Printf("Saved %s (%d bytes)\n", out, n)
			}
			return nil
		})
	},
}

var (
	indexChunkSize int
	indexWait      bool
)

var booksIndexCmd = &cobra.Command{
	Use:   "index <book-id>",
	Short: "Chunk and index a book",
	Long: `Start indexing a book.

With --wait the command follows the index progress socket, falling back
to polling the book status, until the backend reports the book done.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if _, err := a.requireLogin(ctx); err != nil {
				return err
			}
			chunkSize := indexChunkSize
			if chunkSize == 0 {
				chunkSize = a.configMgr.Get().Indexing.ChunkSize
			}
			if err := a.coord.FetchBooks(ctx); err != nil {
				return err
			}

			events, stop := a.coord.Subscribe(64)
			defer stop()

			w, err := a.coord.IndexBook(ctx, args[0], chunkSize)
			if err != nil {
				return err
			}
			if !indexWait {
				fmt.Printf("Indexing %s with chunk size %d\n", args[0], chunkSize)
				return nil
			}

			go printEvents(a, events)
			if err := w.Wait(ctx); err != nil {
				return err
			}
			if w.Source() == "" {
				return errors.New("indexing did not complete")
			}
			return nil
		})
	},
}

var (
	classifyClassification bool
	classifyAnalysis       bool
	classifyWait           bool
)

var booksClassifyCmd = &cobra.Command{
	Use:   "classify <book-id>",
	Short: "Start classification and/or analysis on a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if _, err := a.requireLogin(ctx); err != nil {
				return err
			}
			if err := a.coord.FetchBooks(ctx); err != nil {
				return err
			}
			events, stop := a.coord.Subscribe(64)
			defer stop()

			runClassification := classifyJobs(cmd.Flags().Changed("classification"), classifyClassification, classifyAnalysis)
			if err := a.coord.StartClassification(ctx, args[0], runClassification, classifyAnalysis); err != nil {
				return err
			}
			if !classifyWait {
				fmt.Printf("Started jobs for %s\n", args[0])
				return nil
			}
			return follow(ctx, a, events)
		})
	},
}

// classifyJobs decides whether classification runs. Left unset, it runs
// unless analysis was asked for.
func classifyJobs(classificationSet, classification, analysis bool) bool {
	if classificationSet {
		return classification
	}
	return !analysis
}

var booksWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resume and follow every job started from this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if _, err := a.requireLogin(ctx); err != nil {
				return err
			}
			events, stop := a.coord.Subscribe(64)
			defer stop()

			n, err := a.coord.Resume(ctx)
			if err != nil {
				return err
			}
			if n == 0 && len(a.coord.Progress()) == 0 {
				fmt.Println(render.Muted.Render("No jobs running."))
				return nil
			}
			return follow(ctx, a, events)
		})
	},
}

// follow prints events until no job is tracked.
func follow(ctx context.Context, a *app, events <-chan books.Event) error {
	fmt.Println(render.ProgressList(a.coord.Progress(), bookNames(a)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(a, ev)
			if len(a.coord.Progress()) == 0 {
				return nil
			}
		}
	}
}

func printEvents(a *app, events <-chan books.Event) {
	for ev := range events {
		printEvent(a, ev)
	}
}

func printEvent(a *app, ev books.Event) {
	if api.IsStructuredOutput() {
		api.Output(ev)
		return
	}
	switch ev.Type {
	case books.EventProgress:
		if ev.Progress != nil {
			fmt.Println(render.ProgressList([]books.Progress{*ev.Progress}, bookNames(a)))
		}
	case books.EventFailed:
		fmt.Fprintf(os.Stderr, "%s %s failed: %s\n", ev.BookID, ev.Kind, ev.Error)
	}
}

func bookNames(a *app) map[string]string {
	names := make(map[string]string)
	for _, b := range a.coord.Books() {
		names[b.ID] = b.DocName
	}
	return names
}

var booksAssignCmd = &cobra.Command{
	Use:   "assign <book-id> [department...]",
	Short: "Set the departments a book is assigned to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			return a.coord.AssignDepartments(cmd.Context(), args[0], args[1:])
		})
	},
}

var feedbackDepartment string

var booksFeedbackCmd = &cobra.Command{
	Use:   "feedback <book-id> <comment>",
	Short: "Leave feedback on a book",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			u, err := a.requireLogin(cmd.Context())
			if err != nil {
				return err
			}
			dept := feedbackDepartment
			if dept == "" {
				dept = u.Department
			}
			return a.coord.AddFeedback(cmd.Context(), args[0], args[1], dept)
		})
	},
}

var booksClassificationsCmd = &cobra.Command{
	Use:   "classifications <book-id>",
	Short: "Show a book's chunk classifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			list, err := a.coord.GetBookClassifications(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return api.Output(list)
		})
	},
}

// terminalWidth reads COLUMNS, falling back to a common terminal width.
func terminalWidth() int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("COLUMNS"))); err == nil && n > 0 {
		return n
	}
	return 120
}

func init() {
	booksListCmd.Flags().StringVar(&booksListView, "view", "", "grid or table (default: stored preference)")

	booksUploadCmd.Flags().StringVar(&upload.DocName, "name", "", "Document name (default: file name)")
	booksUploadCmd.Flags().StringVar(&upload.Author, "author", "", "Author")
	booksUploadCmd.Flags().StringVar(&upload.Category, "category", "", "Category")
	booksUploadCmd.Flags().StringVar(&upload.Reference, "reference", "", "Reference")
	booksUploadCmd.Flags().StringVar(&upload.Date, "date", "", "Publication date")
	booksUploadCmd.Flags().StringVar(&upload.Summary, "summary", "", "Summary")

	booksDownloadCmd.Flags().StringVar(&downloadOut, "out", "", "Output path (default: ~/.docdesk/downloads/<id>/<name>.pdf)")

	booksIndexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "Chunk size between 1000 and 8000 (default from config)")
	booksIndexCmd.Flags().BoolVar(&indexWait, "wait", false, "Follow progress until indexing finishes")

	booksClassifyCmd.Flags().BoolVar(&classifyClassification, "classification", false, "Run classification (default unless --analysis is given)")
	booksClassifyCmd.Flags().BoolVar(&classifyAnalysis, "analysis", false, "Run analysis")
	booksClassifyCmd.Flags().BoolVar(&classifyWait, "wait", false, "Follow progress until the jobs finish")

	booksFeedbackCmd.Flags().StringVar(&feedbackDepartment, "department", "", "Department (default: your own)")

	booksCmd.AddCommand(
		booksListCmd,
		booksGetCmd,
		booksUploadCmd,
		booksDownloadCmd,
		booksIndexCmd,
		booksClassifyCmd,
		booksWatchCmd,
		booksAssignCmd,
		booksFeedbackCmd,
		booksClassificationsCmd,
	)
	rootCmd.AddCommand(booksCmd)
}
