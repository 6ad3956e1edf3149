package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/comit-network/cnd/swap"
)

// Problem is an RFC-7807 problem+json body (spec.md §6, §7). Fields
// is the structured extension RFC-7807 allows beyond the four
// standard members, used here for missing_parameters/
// unsupported_parameters-style detail.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`

	Fields map[string]interface{} `json:"-"`
}

const problemContentType = "application/problem+json"

func (p Problem) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	for k, v := range p.Fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// WriteProblem writes p as application/problem+json with p.Status as
// the HTTP status code.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func problemMalformedBody(detail string) Problem {
	return Problem{Title: "Malformed request body", Status: http.StatusBadRequest, Detail: detail}
}

func problemUnsupportedSwap(combination string) Problem {
	return Problem{
		Title:  "Swap not currently supported",
		Status: http.StatusBadRequest,
		Fields: map[string]interface{}{"unsupported_parameters": combination},
	}
}

func problemSwapNotFound(id swap.ID) Problem {
	return Problem{
		Title:  "Swap not found",
		Status: http.StatusNotFound,
		Detail: "no swap exists with id " + id.String(),
	}
}

func problemActionNotFoundForState(action string) Problem {
	return Problem{
		Title:  "Action not valid for this swap's current state",
		Status: http.StatusMethodNotAllowed,
		Detail: "action " + action + " does not apply to this swap right now",
	}
}

func problemActionUnavailable(action, reason string) Problem {
	return Problem{
		Title:  "Action currently unavailable",
		Status: http.StatusConflict,
		Detail: reason,
		Fields: map[string]interface{}{"action": action},
	}
}

// problemForSwapError maps swap.ErrKind to the RFC-7807 problem
// spec.md §7 assigns it, for errors surfaced directly from a handler
// rather than from a missing/invalid action.
func problemForSwapError(err *swap.Error) Problem {
	switch err.Kind {
	case swap.UnsupportedSwap:
		return problemUnsupportedSwap(err.Error())
	case swap.ProtocolDecline:
		return Problem{
			Title:  "Counterparty declined the swap",
			Status: http.StatusBadRequest,
			Fields: map[string]interface{}{"decline_reason": err.Reason},
		}
	case swap.PersistenceFailure:
		return Problem{Title: "Internal storage failure", Status: http.StatusInternalServerError}
	default:
		return Problem{Title: "Internal error", Status: http.StatusInternalServerError, Detail: err.Error()}
	}
}
