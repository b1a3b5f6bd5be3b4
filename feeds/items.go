package feeds

import (
	"net/url"
	"strings"

	"feedstrip/models"

	"github.com/mmcdole/gofeed"
)

func (f *Fetcher) extractItem(base *url.URL, item *gofeed.Item) models.FeedItem {
	out := models.FeedItem{
		Title:       f.sanitizer.Text(item.Title),
		Link:        resolveLink(base, item.Link),
		Description: f.sanitizer.Markup(item.Description),
		ImageURL:    ExtractImageURL(item),
	}

	if out.Title == "" {
		out.Title = models.NoTitle
	}
	if out.Link == "" {
		out.Link = models.NoLink
	}
	if out.Description == "" {
		out.Description = f.sanitizer.Markup(item.Content)
	}
	if out.Description == "" {
		out.Description = models.NoDescription
	}

	return out
}

// resolveLink makes relative links absolute against the source and keeps
// only http and https targets.
func resolveLink(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if !isHTTP(u) {
		return ""
	}
	return u.String()
}

// ExtractImageURL picks the image for an entry.
// Priority: media:content (image) > enclosure (image/*) > media:thumbnail > Item.Image.
func ExtractImageURL(item *gofeed.Item) string {
	mediaExt, hasMedia := item.Extensions["media"]

	if hasMedia {
		for _, content := range mediaExt["content"] {
			if content.Attrs["medium"] == "image" || strings.HasPrefix(content.Attrs["type"], "image/") {
				if u := content.Attrs["url"]; isValidImageURL(u) {
					return u
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isValidImageURL(enc.URL) {
			return enc.URL
		}
	}

	if hasMedia {
		for _, thumb := range mediaExt["thumbnail"] {
			if u := thumb.Attrs["url"]; isValidImageURL(u) {
				return u
			}
		}
	}

	if item.Image != nil && isValidImageURL(item.Image.URL) {
		return item.Image.URL
	}

	return ""
}

func isValidImageURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && isHTTP(u)
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
