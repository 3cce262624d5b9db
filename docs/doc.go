// Package docs provides generated OpenAPI documentation.
//
// docdesk dashboard API
//
//	@title			docdesk dashboard API
//	@version		1.0
//	@description	Local dashboard for the document review backend: books, live job progress, reviews and agents.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/docdesk
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g ../cmd/docdesk/serve.go -o ./swagger --parseDependency --parseInternal
