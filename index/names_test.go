package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docshift/docshift/index"
)

func TestNameDerivation(t *testing.T) {
	assert.Equal(t, "email", index.Name("", "email"))
	assert.Equal(t, "profile_handle", index.Name("", "profile.handle"))
	assert.Equal(t, "user_name", index.Name("user", "name"))
	assert.Equal(t, "blog_post_meta_slug", index.Name("blog-post", "meta.slug"))
}

func TestNameCollapsesRunsOfInvalidChars(t *testing.T) {
	assert.Equal(t, "a_b_c", index.Name("", "a..b--c"))
	assert.Equal(t, "tag_field", index.Name("tag!", ".field."))
}
