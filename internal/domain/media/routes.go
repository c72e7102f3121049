package media

import "github.com/gin-gonic/gin"

// RegisterRoutes registers media routes under the protected group. The
// uploadValidation middleware runs only on the upload route; everything else
// relies on the access context alone.
func RegisterRoutes(r *gin.RouterGroup, h *Handler, uploadValidation gin.HandlerFunc) {
	m := r.Group("/media")
	{
		m.POST("", uploadValidation, h.Upload)
		m.GET("", h.List)
		m.GET("/dashboard", h.Dashboard)
		m.POST("/zip", h.Zip)
		m.GET("/:id", h.Get)
		m.PUT("/:id", h.Update)
		m.PUT("/:id/file", h.UpdateFile)
		m.DELETE("/:id", h.Delete)
		m.GET("/:id/stream", h.Stream)
		m.POST("/:id/relations", h.AddRelation)
	}
}
