package request

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type SendMessageRequest struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message"`
	FileURL   string `json:"fileUrl"`
	Username  string `json:"username"`
}

func (req *SendMessageRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.Message, validation.Length(0, 2000)),
		validation.Field(&req.FileURL, is.URL),
	)
}
