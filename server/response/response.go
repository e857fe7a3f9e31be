package response

import (
	"github.com/gin-gonic/gin"

	apiError "github.com/tutorlinkhq/tutorlink/errors"
)

// JSON writes the uniform response envelope. When err is non-nil its stable
// code is included so clients can branch without parsing the message.
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	body := gin.H{
		"message": message,
		"status":  status,
	}
	if data != nil {
		body["data"] = data
	}
	if err != nil {
		if e, ok := err.(*apiError.Error); ok {
			body["errors"] = e.Message
			body["code"] = e.Code
			if message == "" {
				body["message"] = e.Message
			}
		} else {
			body["errors"] = err.Error()
		}
	}
	c.JSON(status, body)
}
