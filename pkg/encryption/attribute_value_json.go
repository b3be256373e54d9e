package encryption

import (
	"encoding/base64"
	"fmt"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// avJSON is a self-describing JSON projection of the AttributeValue sum
// type, used as the plaintext wire format sealed inside an envelope.
// AttributeValue itself doesn't round-trip through encoding/json.
type avJSON struct {
	Type string            `json:"t"`
	S    *string           `json:"s,omitempty"`
	N    *string           `json:"n,omitempty"`
	B    *string           `json:"b,omitempty"`
	BOOL *bool             `json:"bool,omitempty"`
	L    []avJSON          `json:"l,omitempty"`
	M    map[string]avJSON `json:"m,omitempty"`
	SS   []string          `json:"ss,omitempty"`
	NS   []string          `json:"ns,omitempty"`
	BS   []string          `json:"bs,omitempty"`
	NULL bool              `json:"null,omitempty"`
}

func marshalAVJSON(av ddbtypes.AttributeValue) (avJSON, error) {
	if out, handled, err := marshalScalarAVJSON(av); handled {
		return out, err
	} else if err != nil {
		return avJSON{}, err
	}

	if out, handled, err := marshalCollectionAVJSON(av); handled {
		return out, err
	} else if err != nil {
		return avJSON{}, err
	}

	return avJSON{}, fmt.Errorf("unsupported attribute value type: %T", av)
}

func marshalScalarAVJSON(av ddbtypes.AttributeValue) (avJSON, bool, error) {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		s := v.Value
		return avJSON{Type: "S", S: &s}, true, nil
	case *ddbtypes.AttributeValueMemberN:
		n := v.Value
		return avJSON{Type: "N", N: &n}, true, nil
	case *ddbtypes.AttributeValueMemberB:
		encoded := base64.StdEncoding.EncodeToString(v.Value)
		return avJSON{Type: "B", B: &encoded}, true, nil
	case *ddbtypes.AttributeValueMemberBOOL:
		val := v.Value
		return avJSON{Type: "BOOL", BOOL: &val}, true, nil
	case *ddbtypes.AttributeValueMemberNULL:
		return avJSON{Type: "NULL", NULL: true}, true, nil
	default:
		return avJSON{}, false, nil
	}
}

func marshalCollectionAVJSON(av ddbtypes.AttributeValue) (avJSON, bool, error) {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberL:
		list := make([]avJSON, len(v.Value))
		for i := range v.Value {
			elem, err := marshalAVJSON(v.Value[i])
			if err != nil {
				return avJSON{}, true, err
			}
			list[i] = elem
		}
		return avJSON{Type: "L", L: list}, true, nil
	case *ddbtypes.AttributeValueMemberM:
		m := make(map[string]avJSON, len(v.Value))
		for key, val := range v.Value {
			encoded, err := marshalAVJSON(val)
			if err != nil {
				return avJSON{}, true, err
			}
			m[key] = encoded
		}
		return avJSON{Type: "M", M: m}, true, nil
	case *ddbtypes.AttributeValueMemberSS:
		return avJSON{Type: "SS", SS: append([]string(nil), v.Value...)}, true, nil
	case *ddbtypes.AttributeValueMemberNS:
		return avJSON{Type: "NS", NS: append([]string(nil), v.Value...)}, true, nil
	case *ddbtypes.AttributeValueMemberBS:
		encoded := make([]string, len(v.Value))
		for i := range v.Value {
			encoded[i] = base64.StdEncoding.EncodeToString(v.Value[i])
		}
		return avJSON{Type: "BS", BS: encoded}, true, nil
	default:
		return avJSON{}, false, nil
	}
}

func unmarshalAVJSON(enc avJSON) (ddbtypes.AttributeValue, error) {
	if out, handled, err := unmarshalScalarAVJSON(enc); handled {
		return out, err
	} else if err != nil {
		return nil, err
	}

	if out, handled, err := unmarshalCollectionAVJSON(enc); handled {
		return out, err
	} else if err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("unsupported encoded attribute value type: %s", enc.Type)
}

func unmarshalScalarAVJSON(enc avJSON) (ddbtypes.AttributeValue, bool, error) {
	switch enc.Type {
	case "S":
		if enc.S == nil {
			return &ddbtypes.AttributeValueMemberS{Value: ""}, true, nil
		}
		return &ddbtypes.AttributeValueMemberS{Value: *enc.S}, true, nil
	case "N":
		if enc.N == nil {
			return &ddbtypes.AttributeValueMemberN{Value: "0"}, true, nil
		}
		return &ddbtypes.AttributeValueMemberN{Value: *enc.N}, true, nil
	case "B":
		if enc.B == nil {
			return &ddbtypes.AttributeValueMemberB{Value: nil}, true, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(*enc.B)
		if err != nil {
			return nil, true, fmt.Errorf("failed to decode binary: %w", err)
		}
		return &ddbtypes.AttributeValueMemberB{Value: decoded}, true, nil
	case "BOOL":
		val := false
		if enc.BOOL != nil {
			val = *enc.BOOL
		}
		return &ddbtypes.AttributeValueMemberBOOL{Value: val}, true, nil
	case "NULL":
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, true, nil
	default:
		return nil, false, nil
	}
}

func unmarshalCollectionAVJSON(enc avJSON) (ddbtypes.AttributeValue, bool, error) {
	switch enc.Type {
	case "L":
		list := make([]ddbtypes.AttributeValue, len(enc.L))
		for i := range enc.L {
			elem, err := unmarshalAVJSON(enc.L[i])
			if err != nil {
				return nil, true, err
			}
			list[i] = elem
		}
		return &ddbtypes.AttributeValueMemberL{Value: list}, true, nil
	case "M":
		m := make(map[string]ddbtypes.AttributeValue, len(enc.M))
		for key, val := range enc.M {
			decoded, err := unmarshalAVJSON(val)
			if err != nil {
				return nil, true, err
			}
			m[key] = decoded
		}
		return &ddbtypes.AttributeValueMemberM{Value: m}, true, nil
	case "SS":
		return &ddbtypes.AttributeValueMemberSS{Value: append([]string(nil), enc.SS...)}, true, nil
	case "NS":
		return &ddbtypes.AttributeValueMemberNS{Value: append([]string(nil), enc.NS...)}, true, nil
	case "BS":
		decoded := make([][]byte, len(enc.BS))
		for i := range enc.BS {
			b, err := base64.StdEncoding.DecodeString(enc.BS[i])
			if err != nil {
				return nil, true, fmt.Errorf("failed to decode binary set: %w", err)
			}
			decoded[i] = b
		}
		return &ddbtypes.AttributeValueMemberBS{Value: decoded}, true, nil
	default:
		return nil, false, nil
	}
}
