package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInviteCodeFromLink(t *testing.T) {
	code, err := InviteCodeFromLink("https://chat.whatsapp.com/KRyARlvcUjoIv1CPSSyQA5?mode=ems_copy_t")
	require.NoError(t, err)
	require.Equal(t, "KRyARlvcUjoIv1CPSSyQA5", code)

	_, err = InviteCodeFromLink("https://example.com/nope")
	require.Error(t, err)
}

func TestUserAddress(t *testing.T) {
	require.Equal(t, "263714732501@s.whatsapp.net", UserAddress("263714732501"))
}
