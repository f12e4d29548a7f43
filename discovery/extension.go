// Package discovery holds the pieces SPDP and SEDP builtin-topic-data
// share: the vendor-extension side channel carried in every discovery
// sample's ParameterList under the vendor-specific PID range. The
// ParameterList grammar allows vendor-specific parameters with undefined
// contents, so this module reserves one for free-form CBOR-encoded
// extension fields, the same extension-envelope idiom used elsewhere in
// this codebase for descriptor extra data.
package discovery

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/go-rtps/rtps/core/wire"
)

// VendorExtension is an open-ended bag of implementation-specific fields
// that ride alongside standard builtin-topic-data without requiring a
// new well-known PID per field.
type VendorExtension struct {
	Fields map[string]interface{} `cbor:"fields"`
}

// EncodeVendorExtension CBOR-encodes ext and appends it to pl under
// PIDVendorExtensionCBOR. A nil or empty ext is a no-op, so callers with
// nothing to carry don't pay for an empty parameter.
func EncodeVendorExtension(pl *wire.ParameterList, ext VendorExtension) error {
	if len(ext.Fields) == 0 {
		return nil
	}
	b, err := cbor.Marshal(ext)
	if err != nil {
		return err
	}
	pl.Add(wire.PIDVendorExtensionCBOR, b)
	return nil
}

// DecodeVendorExtension reads the PIDVendorExtensionCBOR parameter from
// pl, if present.
func DecodeVendorExtension(pl wire.ParameterList) (VendorExtension, bool, error) {
	b, ok := pl.Get(wire.PIDVendorExtensionCBOR)
	if !ok {
		return VendorExtension{}, false, nil
	}
	var ext VendorExtension
	if err := cbor.Unmarshal(b, &ext); err != nil {
		return VendorExtension{}, false, err
	}
	return ext, true, nil
}
