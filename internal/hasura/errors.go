package hasura

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	qerrors "github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
)

// Hasura error codes that mean the requested state already holds
var idempotentCodes = map[string]bool{
	"already-tracked":   true,
	"already-untracked": true,
	"already-exists":    true,
}

var idempotentPhrases = []string{
	"already tracked",
	"already untracked",
	"already exists",
}

// QueryError is a failed run_sql call
type QueryError struct {
	Endpoint  string
	Statement string
	Status    int
	Code      string
	Message   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("run_sql on %s failed: %s", e.Endpoint, e.Message)
}

func (e *QueryError) Unwrap() error {
	return qerrors.New(qerrors.ErrTypeQuery, e.Message)
}

// MetadataError is a metadata operation rejected by the endpoint
type MetadataError struct {
	OpType  string
	Args    interface{}
	Status  int
	Code    string
	Message string
}

func (e *MetadataError) Error() string {
	args, _ := json.Marshal(e.Args)

	if e.Code != "" {
		return fmt.Sprintf("%s failed (%d %s): %s args=%s", e.OpType, e.Status, e.Code, e.Message, args)
	}

	return fmt.Sprintf("%s failed (%d): %s args=%s", e.OpType, e.Status, e.Message, args)
}

func (e *MetadataError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || e.Code == "access-denied" {
		return qerrors.New(qerrors.ErrTypeAuth, e.Message).
			WithSuggestion("Check HASURA_GRAPHQL_ADMIN_SECRET")
	}

	return qerrors.New(qerrors.ErrTypeMetadata, e.Message)
}

// Classify maps an upstream error to an item outcome.
// "Already tracked", "already untracked" and "already exists" conflicts are successes.
func Classify(err error) types.Outcome {
	if err == nil {
		return types.OutcomeSuccess
	}

	if IsIdempotentConflict(err) {
		return types.OutcomeIdempotent
	}

	return types.OutcomeFailed
}

// IsIdempotentConflict reports whether err says the requested state already holds
func IsIdempotentConflict(err error) bool {
	var code, message string

	var metaErr *MetadataError

	var queryErr *QueryError

	switch {
	case errors.As(err, &metaErr):
		code, message = metaErr.Code, metaErr.Message
	case errors.As(err, &queryErr):
		code, message = queryErr.Code, queryErr.Message
	default:
		return false
	}

	if idempotentCodes[code] {
		return true
	}

	message = strings.ToLower(message)
	for _, phrase := range idempotentPhrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}

	return false
}

// apiError is the error body returned by both endpoints
type apiError struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Path     string `json:"path"`
	Internal *struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"internal"`
}

// parseAPIError extracts the code and the most specific message from an error body
func parseAPIError(status int, body []byte) (code, message string) {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || (apiErr.Error == "" && apiErr.Code == "") {
		message = strings.TrimSpace(string(body))
		if message == "" {
			message = http.StatusText(status)
		}

		return "", message
	}

	message = apiErr.Error
	if apiErr.Internal != nil && apiErr.Internal.Error != nil && apiErr.Internal.Error.Message != "" {
		message = apiErr.Internal.Error.Message
	}

	return apiErr.Code, message
}
