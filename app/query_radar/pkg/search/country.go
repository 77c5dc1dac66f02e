package search

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// CountryNamer 把 Search Console 返回的 ISO 3166-1 alpha-3 国家代码转换为显示名称
type CountryNamer struct {
	namer display.Namer
}

// NewCountryNamer lang 为空时使用英文
func NewCountryNamer(lang string) (*CountryNamer, error) {
	tag := language.English
	if lang != "" {
		t, err := language.Parse(lang)
		if err != nil {
			return nil, err
		}
		tag = t
	}
	return &CountryNamer{namer: display.Regions(tag)}, nil
}

// Name 无法识别的代码原样返回
func (c *CountryNamer) Name(code string) string {
	if c == nil || c.namer == nil {
		return code
	}
	region, err := language.ParseRegion(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return code
	}
	if name := c.namer.Name(region); name != "" {
		return name
	}
	return code
}
