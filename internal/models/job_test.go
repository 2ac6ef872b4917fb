package models

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gitbucketURL = "http://localhost/gitbucket/sogabe/gitbucket-plugin/"

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no trailing slash", "http://host/grp/proj", "http://host/grp/proj/"},
		{"trailing slash", "http://host/grp/proj/", "http://host/grp/proj/"},
		{"trailing spaces", "http://host/grp/proj  ", "http://host/grp/proj/"},
		{"many trailing slashes", "http://host/grp/proj///", "http://host/grp/proj/"},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"only slashes", "//", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBaseURL(tt.in))
		})
	}
}

func TestNewJobLinkConfig(t *testing.T) {
	cfg := NewJobLinkConfig(" http://localhost/gitbucket/sogabe/gitbucket-plugin ", "  secret  ", true)

	assert.Equal(t, gitbucketURL, cfg.URL)
	assert.Equal(t, "secret", cfg.APIToken)
	assert.True(t, cfg.LinkEnabled)
	assert.True(t, cfg.HasURL())

	empty := NewJobLinkConfig("  ", "", false)
	assert.False(t, empty.HasURL())
	assert.Equal(t, "", empty.APIToken)
}

func TestJob_LinkAction(t *testing.T) {
	t.Run("url not set", func(t *testing.T) {
		job := &Job{Name: "build", Link: NewJobLinkConfig("", "", true)}
		assert.Nil(t, job.LinkAction())
	})

	t.Run("url set", func(t *testing.T) {
		job := &Job{Name: "build", Link: NewJobLinkConfig(gitbucketURL, "", true)}
		action := job.LinkAction()
		require.NotNil(t, action)
		assert.Equal(t, gitbucketURL, action.URL)
		assert.Equal(t, "GitBucket", action.DisplayName)
	})
}

func TestProperty_NormalizeBaseURLEndsWithSingleSlash(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("normalized URL is empty or ends with exactly one slash", prop.ForAll(
		func(path string, slashes int, spaces int) bool {
			in := "http://host/" + path + strings.Repeat("/", slashes) + strings.Repeat(" ", spaces)
			out := NormalizeBaseURL(in)
			if out == "" {
				return false
			}
			return strings.HasSuffix(out, "/") && !strings.HasSuffix(out, "//")
		},
		gen.AlphaString(),
		gen.IntRange(0, 4),
		gen.IntRange(0, 3),
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeBaseURL(s)
			return NormalizeBaseURL(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
