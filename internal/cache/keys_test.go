package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	assert.Equal(t, "post:id:abc", PostIDKey("abc"))
	assert.Equal(t, "post:slug:hello-world", PostSlugKey("hello-world"))
	assert.Equal(t, "revisions:post:abc", RevisionsKey("abc"))
	assert.Equal(t, "ns:7:true:2024-01-02T02:04:05Z:null", GenerateKey("ns", 7, true, ts, nil))
}

func TestGenerateKeyHashesStructuredParts(t *testing.T) {
	type filter struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}

	a := PostListKey(filter{Status: "published", Limit: 10})
	b := PostListKey(filter{Status: "published", Limit: 10})
	c := PostListKey(filter{Status: "published", Limit: 11})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "posts:list:"))

	m1 := map[string]interface{}{"a": 1, "b": "x"}
	m2 := map[string]interface{}{"b": "x", "a": 1}
	assert.Equal(t, GenerateKey("ns", m1), GenerateKey("ns", m2))
}

func TestPostTags(t *testing.T) {
	assert.Equal(t, []string{"posts", "post:1", "post:slug:old", "post:slug:new"}, PostTags("1", "old", "new"))
	assert.Equal(t, []string{"posts", "post:1", "post:slug:same"}, PostTags("1", "same", "same", ""))
}

func TestNamespaceAndTagFamily(t *testing.T) {
	assert.Equal(t, "post:id", namespaceOf("post:id:abc"))
	assert.Equal(t, "posts:list", namespaceOf("posts:list:ff00"))
	assert.Equal(t, "answer", namespaceOf("answer"))

	assert.Equal(t, "post:slug", tagFamily("post:slug:x"))
	assert.Equal(t, "post", tagFamily("post:123"))
	assert.Equal(t, "revisions:post", tagFamily("revisions:post:123"))
	assert.Equal(t, "posts", tagFamily("posts"))
}
