package endpoints

import (
	"github.com/jackzampolin/docdesk/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health
		&HealthEndpoint{},

		// Session
		&LoginEndpoint{},
		&LogoutEndpoint{},
		&WhoAmIEndpoint{},

		// Books
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&BookFileEndpoint{},
		&ClassificationsEndpoint{},
		&ReviewsEndpoint{},

		// Jobs
		&IndexBookEndpoint{},
		&ClassifyBookEndpoint{},
		&ProgressEndpoint{},
		&EventsEndpoint{},

		// Status
		&NotificationsEndpoint{},
		&AgentsEndpoint{},

		// Pages (catch-all must be last)
		&IndexEndpoint{},
		&StaticEndpoint{},
		&BookPageEndpoint{},
		&PageEndpoint{},
	}
}
