package utils

import "github.com/gin-gonic/gin"

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Fail writes an error JSON response.
func Fail(c *gin.Context, err error) {
	FailWithStatus(c, 400, err)
}

// FailWithStatus writes an error JSON response with the given HTTP status.
func FailWithStatus(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"code": -1,
		"msg":  err.Error(),
	})
}
