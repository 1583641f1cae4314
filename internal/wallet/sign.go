package wallet

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

const signHeader = "Midnight Signed Message (Dark Wallet)"

// signPrefix is prepended to every signData payload and names the origin
// and network the signature was made for.
func signPrefix(origin, networkID string) []byte {
	return []byte(strings.Join([]string{
		signHeader,
		"origin:" + origin,
		"network:" + networkID,
		"",
	}, "\n"))
}

// SignedMessage returns the exact bytes SignData signs for data.
func SignedMessage(origin, networkID string, payload []byte) []byte {
	return append(signPrefix(origin, networkID), payload...)
}

func decodePayload(data, encoding string) ([]byte, error) {
	switch encoding {
	case types.EncodingText, "":
		return []byte(data), nil
	case types.EncodingHex:
		b, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
		if err != nil {
			return nil, apperrors.InvalidRequest("signData payload is not valid hex.")
		}
		return b, nil
	case types.EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, apperrors.InvalidRequest("signData payload is not valid base64.")
		}
		return b, nil
	default:
		return nil, apperrors.InvalidRequest(fmt.Sprintf("Unsupported encoding '%s'.", encoding))
	}
}
