package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/newthinker/foresight/internal/core"
)

var validate = validator.New()

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// readAndValidate decodes the JSON body into req, applies `default` tags and
// runs `validate` tags. Failures are ErrInvalidRequest.
func readAndValidate(r *http.Request, req any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return core.Errorf(core.ErrInvalidRequest, "decoding request body: %v", err)
	}

	if err := defaults.Set(req); err != nil {
		return core.Errorf(core.ErrInvalidRequest, "applying defaults: %v", err)
	}

	if err := validate.StructCtx(r.Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return core.Errorf(core.ErrInvalidRequest, "%s", strings.Join(msgs, "; "))
		}
		return core.WrapError(core.ErrInvalidRequest, err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// intQuery parses an optional positive integer query parameter; absent
// means 0.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, core.Errorf(core.ErrInvalidRequest, "%s must be a positive integer, got %q", name, raw)
	}
	return v, nil
}
