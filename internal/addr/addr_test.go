package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostPort(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantIP  string
		wantPt  uint16
		wantErr error
	}{
		{name: "bare port", text: "80", wantIP: "0.0.0.0", wantPt: 80},
		{name: "v4 host:port", text: "1.2.3.4:80", wantIP: "1.2.3.4", wantPt: 80},
		{name: "bracketed v6", text: "[::1]:80", wantIP: "::1", wantPt: 80},
		{name: "missing host", text: ":80", wantErr: ErrMissingPort},
		{name: "bracketed missing port", text: "[::1]", wantErr: ErrMissingPort},
		{name: "bare host no port", text: "1.2.3.4", wantIP: "1.2.3.4", wantPt: 0},
		{name: "invalid port", text: "1.2.3.4:99999", wantErr: ErrInvalidPort},
		{name: "unterminated bracket", text: "[::1:80", wantErr: ErrMissingCloseBracket},
		{name: "too many colons", text: "1.2.3.4:80:90", wantErr: ErrTooManyColons},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ep, err := ParseHostPort(tc.text)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantIP, ep.IP.String())
			assert.Equal(t, tc.wantPt, ep.Port)
		})
	}
}

func TestEndpointString(t *testing.T) {
	v4, err := ParseHostPort("1.2.3.4:80")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4:80", v4.String())

	v6, err := ParseHostPort("[::1]:80")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:80", v6.String())
}

func TestEndpointEqual(t *testing.T) {
	a, _ := ParseHostPort("1.2.3.4:80")
	b, _ := ParseHostPort("1.2.3.4:80")
	c, _ := ParseHostPort("1.2.3.4:81")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestEndpointUnspecified(t *testing.T) {
	var e Endpoint
	assert.True(t, e.Unspecified())
}
