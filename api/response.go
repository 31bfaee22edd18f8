package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(fieldName)
	}
}

// fieldName reports fields by their wire name.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

type errorBody struct {
	Kind        string   `json:"kind"`
	Explanation []string `json:"explanation"`
}

type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    any        `json:"data"`
	Error   *errorBody `json:"error,omitempty"`
}

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:       http.StatusBadRequest,
	domain.KindNotFound:         http.StatusNotFound,
	domain.KindCapacity:         http.StatusConflict,
	domain.KindDuplicatePayment: http.StatusConflict,
	domain.KindExpiredSession:   http.StatusGone,
	domain.KindInventory:        http.StatusBadGateway,
	domain.KindInternal:         http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	explanation := domain.ExplanationOf(err)
	if kind == domain.KindInternal {
		_ = c.Error(err)
		var de *domain.Error
		if !errors.As(err, &de) || len(de.Explanation) == 0 {
			explanation = []string{"Something went wrong"}
		}
	}
	abortWith(c, status, string(kind), explanation...)
}

func abortWith(c *gin.Context, status int, kind string, explanation ...string) {
	c.AbortWithStatusJSON(status, envelope{
		Success: false,
		Message: "Something went wrong",
		Data:    gin.H{},
		Error:   &errorBody{Kind: kind, Explanation: explanation},
	})
}

// bindError turns a binding failure into a validation error with one entry
// per offending field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Validation("malformed request: " + err.Error())
	}
	explanation := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		explanation = append(explanation, describeField(fe))
	}
	return domain.Validation(explanation...)
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
