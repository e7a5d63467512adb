package relay

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Requests and responses use Core Deterministic Encoding so the same
// envelope always produces the same bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// any-typed targets decode maps as map[string]any rather than
		// map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is an encoded CBOR value whose decoding is deferred to the
// command handler.
type RawMessage = cbor.RawMessage

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
