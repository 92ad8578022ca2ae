package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, "png", ExtensionFor("image/png"))
	assert.Equal(t, "mov", ExtensionFor("video/quicktime"))
	// empty falls back to the default mime type
	assert.Equal(t, "jpg", ExtensionFor(""))
	// unknown subtypes fall back to the subtype itself
	assert.Equal(t, "avif", ExtensionFor("image/avif"))
	// unparseable types get a generic extension
	assert.Equal(t, "bin", ExtensionFor("application"))
	assert.Equal(t, "bin", ExtensionFor("image/"))
}
