package errors

import (
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// NewReportHandler logs errors whose message is not safe for clients, then
// passes them on unchanged. Reporting never removes an error from the
// response.
func NewReportHandler(logger zerolog.Logger) Handler {
	return HandlerFunc(func(err *gqlerror.Error, next Next) *gqlerror.Error {
		if Classify(err) == KindInternal {
			ev := logger.Error().Str("category", Category(err)).Str("path", err.Path.String())
			if err.Err != nil {
				ev = ev.Err(err.Err)
			}
			ev.Msg(err.Message)
		}
		return next(err)
	})
}

// NewRedactHandler replaces the message of internal errors before they reach
// the client, keeping path, locations and category intact. The original
// cause stays on the error for debug formatting.
func NewRedactHandler(logger zerolog.Logger) Handler {
	return HandlerFunc(func(err *gqlerror.Error, next Next) *gqlerror.Error {
		if Classify(err) == KindInternal {
			err.Message = "Internal server error"
		}
		return next(err)
	})
}

// NewCategoryHandler stamps the error's category into its extensions when
// absent.
func NewCategoryHandler(logger zerolog.Logger) Handler {
	return HandlerFunc(func(err *gqlerror.Error, next Next) *gqlerror.Error {
		if err.Extensions == nil {
			err.Extensions = map[string]any{}
		}
		if _, ok := err.Extensions["category"]; !ok {
			err.Extensions["category"] = Category(err)
		}
		return next(err)
	})
}
