package payments

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseOrderRef(t *testing.T) {
	ref := BuildOrderRef(42, "pro", "partner-1")
	parsed, err := ParseOrderRef(ref)
	require.NoError(t, err)
	assert.Equal(t, uint(42), parsed.UserID)
	assert.Equal(t, "pro", parsed.Plan)
	assert.Equal(t, "partner-1", parsed.AffiliateCode)

	ref = BuildOrderRef(7, "agency", "")
	assert.True(t, strings.HasSuffix(ref, "__none"))
	parsed, err = ParseOrderRef(ref)
	require.NoError(t, err)
	assert.Equal(t, uint(7), parsed.UserID)
	assert.Empty(t, parsed.AffiliateCode)
}

func TestParseOrderRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
		want    OrderRef
	}{
		{name: "full", ref: "5__pro__1700000000__code", want: OrderRef{UserID: 5, Plan: "pro", AffiliateCode: "code"}},
		{name: "none code", ref: "5__pro__1700000000__none", want: OrderRef{UserID: 5, Plan: "pro"}},
		{name: "two segments", ref: "9__agency", want: OrderRef{UserID: 9, Plan: "agency"}},
		{name: "empty", ref: "", wantErr: true},
		{name: "single segment", ref: "42", wantErr: true},
		{name: "non numeric user", ref: "abc__pro__1__none", wantErr: true},
		{name: "zero user", ref: "0__pro__1__none", wantErr: true},
		{name: "missing plan", ref: "5____1__none", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOrderRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
