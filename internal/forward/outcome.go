package forward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gotd/td/tgerr"
)

// Kind tags an Outcome
type Kind uint8

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindPermissionDenied
	KindNotFound
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Outcome is the classified result of a platform call
type Outcome struct {
	Kind       Kind
	RetryAfter time.Duration // KindRateLimited
	Reason     string        // KindPermissionDenied, KindNotFound
	Err        error         // KindFailed
}

func Success() Outcome { return Outcome{Kind: KindSuccess} }

func RateLimited(retryAfter time.Duration) Outcome {
	return Outcome{Kind: KindRateLimited, RetryAfter: retryAfter}
}

func PermissionDenied(reason string) Outcome {
	return Outcome{Kind: KindPermissionDenied, Reason: reason}
}

func NotFound(reason string) Outcome { return Outcome{Kind: KindNotFound, Reason: reason} }

func Failed(err error) Outcome { return Outcome{Kind: KindFailed, Err: err} }

func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Error renders the outcome for logs and operator replies
func (o Outcome) Error() string {
	switch o.Kind {
	case KindSuccess:
		return ""
	case KindRateLimited:
		return fmt.Sprintf("rate limited, retry after %s", o.RetryAfter)
	case KindPermissionDenied:
		return "permission denied: " + o.Reason
	case KindNotFound:
		return "not found: " + o.Reason
	default:
		if o.Err == nil {
			return "failed"
		}
		return o.Err.Error()
	}
}

var (
	permissionMarkers = []string{
		"not enough rights",
		"need administrator rights",
		"have no rights",
		"chat_admin_required",
		"chat_write_forbidden",
		"bot is not a member",
		"bot was kicked",
		"channel_private",
	}
	notFoundMarkers = []string{
		"not found",
		"message_id_invalid",
		"msg_id_invalid",
		"message can't be copied",
		"chat_id_invalid",
		"peer_id_invalid",
		"username_invalid",
		"username_not_occupied",
	}
)

// Classify maps an error from either Telegram client to an Outcome. A nil
// error is a success.
func Classify(err error) Outcome {
	if err == nil {
		return Success()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failed(err)
	}

	if d, ok := tgerr.AsFloodWait(err); ok {
		return RateLimited(d)
	}

	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		return classifyText(rpcErr.Code, rpcErr.Type, err)
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.RetryAfter > 0 {
			return RateLimited(time.Duration(apiErr.RetryAfter) * time.Second)
		}
		return classifyText(apiErr.Code, apiErr.Message, err)
	}

	return Failed(err)
}

func classifyText(code int, text string, err error) Outcome {
	lower := strings.ToLower(text)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return PermissionDenied(text)
		}
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return NotFound(text)
		}
	}
	if code == 403 {
		return PermissionDenied(text)
	}
	return Failed(err)
}
