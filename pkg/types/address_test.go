package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTripDefaultsCountry(t *testing.T) {
	in := Address{Line1: "12 MG Road", City: "Bengaluru", State: "Karnataka", PostalCode: "560001"}
	v, err := in.Value()
	require.NoError(t, err)

	var out Address
	require.NoError(t, out.Scan(v))
	assert.Equal(t, "IN", out.Country)
	assert.Equal(t, "Karnataka", out.State)

	require.NoError(t, out.Scan([]byte(`{"line1":"x","city":"y","state":"Goa","postal_code":"403001","country":"IN"}`)))
	assert.Equal(t, "Goa", out.State)
}

func TestAddressValidate(t *testing.T) {
	assert.EqualError(t, Address{Line1: "a", City: "b", PostalCode: "1"}.Validate(), "address: missing state")
	assert.Error(t, (&Address{}).Scan(42))
}
