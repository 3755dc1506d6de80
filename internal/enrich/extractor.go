package enrich

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/scrape"
)

// DefaultRegion is the phone region assumed for numbers without a
// country code.
const DefaultRegion = "DE"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+|00)?\d[\d\s/().-]{5,}\d`)

	obfuscations = strings.NewReplacer(
		" [at] ", "@", "[at]", "@", "(at)", "@", " (at) ", "@",
		" [dot] ", ".", "[dot]", ".", "(dot)", ".",
	)

	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

	placeholderEmails = []string{
		"example.com", "example.org", "test.com", "domain.com",
		"@sentry", "wixpress.com", "@google-analytics", "noreply@", "no-reply@",
	}

	socialHosts = []struct {
		platform string
		hosts    []string
	}{
		{"facebook", []string{"facebook.com", "fb.com"}},
		{"instagram", []string{"instagram.com"}},
		{"linkedin", []string{"linkedin.com"}},
		{"twitter", []string{"twitter.com", "x.com"}},
		{"youtube", []string{"youtube.com"}},
		{"tiktok", []string{"tiktok.com"}},
		{"xing", []string{"xing.com"}},
	}

	contactKeywords = []string{
		"kontakt", "contact", "impressum", "imprint", "about",
		"ueber-uns", "uber-uns", "uber uns", "legal",
	}
)

// Page is the contact evidence found on one web page.
type Page struct {
	URL          string            `json:"url"`
	Emails       []string          `json:"emails,omitempty"`
	Phones       []string          `json:"phones,omitempty"`
	Social       map[string]string `json:"social,omitempty"`
	ContactLinks []string          `json:"contact_links,omitempty"`
}

// ExtractContacts parses html served at pageURL. Phones are validated
// for region and returned in E.164.
func ExtractContacts(pageURL, html, region string) (*Page, error) {
	if region == "" {
		region = DefaultRegion
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: parse page url %q", pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: parse html")
	}

	page := &Page{URL: pageURL, Social: make(map[string]string)}
	emails := newOrderedSet()
	phones := newOrderedSet()
	links := newOrderedSet()

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)

		switch {
		case strings.HasPrefix(lower, "mailto:"):
			addr, _, _ := strings.Cut(href[len("mailto:"):], "?")
			if addr, err := url.PathUnescape(addr); err == nil && validEmail(addr) {
				emails.add(strings.TrimSpace(addr))
			}
			return
		case strings.HasPrefix(lower, "tel:"):
			if p := NormalizePhone(href[len("tel:"):], region); p != "" {
				phones.add(p)
			}
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if platform := socialPlatform(abs.Hostname()); platform != "" {
			if _, ok := page.Social[platform]; !ok {
				page.Social[platform] = abs.String()
			}
			return
		}
		if sameSite(base, abs) && isContactLink(abs.Path, s.Text()) && abs.String() != base.String() {
			links.add(abs.String())
		}
	})

	text := obfuscations.Replace(scrape.VisibleText(doc))
	for _, m := range emailRe.FindAllString(text, -1) {
		if validEmail(m) {
			emails.add(m)
		}
	}
	for _, m := range phoneRe.FindAllString(text, -1) {
		if p := NormalizePhone(m, region); p != "" {
			phones.add(p)
		}
	}

	page.Emails = emails.items
	page.Phones = phones.items
	page.ContactLinks = links.items
	if len(page.Social) == 0 {
		page.Social = nil
	}
	return page, nil
}

// NormalizePhone returns s in E.164 when it parses as a valid number for
// region, or "" otherwise.
func NormalizePhone(s, region string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// DigitsPlus keeps only digits and '+'.
func DigitsPlus(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	if !emailRe.MatchString(addr) || emailRe.FindString(addr) != addr {
		return false
	}
	lower := strings.ToLower(addr)
	for _, s := range assetSuffixes {
		if strings.HasSuffix(lower, s) {
			return false
		}
	}
	for _, p := range placeholderEmails {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

func socialPlatform(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "m.")
	for _, s := range socialHosts {
		for _, h := range s.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return s.platform
			}
		}
	}
	return ""
}

func sameSite(a, b *url.URL) bool {
	if b.Scheme != "http" && b.Scheme != "https" {
		return false
	}
	trim := func(h string) string { return strings.TrimPrefix(strings.ToLower(h), "www.") }
	return trim(a.Hostname()) == trim(b.Hostname())
}

func isContactLink(path, text string) bool {
	hay := provider.NormalizeCategory(path + " " + text)
	for _, k := range contactKeywords {
		if strings.Contains(hay, k) {
			return true
		}
	}
	return false
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}
