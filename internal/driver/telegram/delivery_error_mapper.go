package telegram

import (
	"errors"
	"strings"

	"weatherstuff/pkg/weatherstuff"

	"github.com/gotd/td/tgerr"
)

func mapTelegramDeliveryError(source weatherstuff.EventSource, queryID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, weatherstuff.ErrInvalidInlineAnswer) {
		return err
	}

	deliveryErr := &weatherstuff.DeliveryError{
		Kind:     weatherstuff.DeliveryErrorKindUnknown,
		Platform: source.Platform,
		SinkID:   source.ID,
		QueryID:  queryID,
		Cause:    err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		deliveryErr.Kind = weatherstuff.DeliveryErrorKindRateLimited
		deliveryErr.RetryAfter = retryAfter
		if rpcErr, hasRPC := tgerr.As(err); hasRPC {
			deliveryErr.Code = rpcErr.Code
			deliveryErr.Type = rpcErr.Type
		}

		return deliveryErr
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return deliveryErr
	}

	deliveryErr.Code = rpcErr.Code
	deliveryErr.Type = rpcErr.Type
	deliveryErr.Kind = classifyTelegramRPCError(rpcErr)

	return deliveryErr
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) weatherstuff.DeliveryErrorKind {
	if rpcErr == nil {
		return weatherstuff.DeliveryErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD") {
		return weatherstuff.DeliveryErrorKindRateLimited
	}
	if errorType == "QUERY_ID_INVALID" {
		return weatherstuff.DeliveryErrorKindExpired
	}

	switch rpcErr.Code {
	case 303:
		return weatherstuff.DeliveryErrorKindTemporary
	case 400, 401, 403, 404, 405, 406:
		return weatherstuff.DeliveryErrorKindPermanent
	}
	if rpcErr.Code >= 500 {
		return weatherstuff.DeliveryErrorKindTemporary
	}

	return weatherstuff.DeliveryErrorKindUnknown
}
