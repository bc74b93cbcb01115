package cache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key namespaces and tags for post data.
const (
	TagPosts = "posts"

	nsPostByID     = "post:id"
	nsPostBySlug   = "post:slug"
	nsPostList     = "posts:list"
	nsPostRevision = "revisions:post"
)

func PostIDKey(id string) string { return GenerateKey(nsPostByID, id) }
func PostSlugKey(slug string) string { return GenerateKey(nsPostBySlug, slug) }
func RevisionsKey(postID string) string { return GenerateKey(nsPostRevision, postID) }

// PostListKey folds an arbitrary query description into a bounded key.
func PostListKey(query interface{}) string { return GenerateKey(nsPostList, query) }

func PostTag(id string) string { return "post:" + id }
func SlugTag(slug string) string { return "post:slug:" + slug }
func RevisionsTag(postID string) string { return "revisions:post:" + postID }

// PostTags lists the tags every write to a post must invalidate. Extra
// slugs cover renames, where entries under the old slug are also stale.
func PostTags(id string, slugs ...string) []string {
	tags := []string{TagPosts, PostTag(id)}
	for _, s := range slugs {
		if s != "" {
			tags = append(tags, SlugTag(s))
		}
	}
	return dedupe(tags)
}

// GenerateKey joins namespace and parts with ':'. Scalars are written as
// text; anything else is encoded as JSON and replaced by its xxhash64 so
// equal queries share a key of bounded length. Map keys are sorted by
// encoding/json, which makes the encoding canonical.
func GenerateKey(namespace string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(keyPart(p))
	}
	return b.String()
}

func keyPart(p interface{}) string {
	switch v := p.(type) {
	case nil:
		return "null"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}

	data, err := json.Marshal(p)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", p))
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
