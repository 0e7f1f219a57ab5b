package chat

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// RegisterRoutes mounts the chat page and its JSON API. sessions must load the
// session state; throttle guards /chat and may be nil.
func RegisterRoutes(router *gin.Engine, h *Handler, sessions gin.HandlerFunc, throttle gin.HandlerFunc) {
	router.SetHTMLTemplate(template.Must(template.New("").ParseFS(templateFS, "templates/*.html")))

	router.GET("/health", h.Health)

	app := router.Group("/", sessions)
	{
		app.GET("/", h.Index)
		app.POST("/new_chat", h.NewChat)
		app.GET("/load_chat/:id", h.LoadChat)
		app.POST("/update_title/:id", h.UpdateTitle)
		app.DELETE("/delete_chat/:id", h.DeleteChat)
		app.POST("/save_api_keys", h.SaveAPIKeys)

		if throttle != nil {
			app.POST("/chat", throttle, h.Chat)
		} else {
			app.POST("/chat", h.Chat)
		}
	}
}
