package router

import (
	"Go_Uploader/internal/handler"
	"Go_Uploader/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes.
func InitRouter() *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	api := r.Group("/api")
	{
		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		upload := auth.Group("/upload")
		{
			upload.POST("/submit", handler.SubmitUpload)
			upload.POST("/pause", handler.PauseUpload)
			upload.POST("/resume", handler.ResumeUpload)
			upload.POST("/cancel", handler.CancelUpload)
			upload.POST("/cleanup", handler.CleanupUpload)
			upload.GET("/status/:name", handler.UploadStatus)
			upload.GET("/list", handler.ListUploads)
		}
	}
	return r
}
