// Package device turns User-Agent headers into short labels for login audit logs.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// Info is the parsed shape of a User-Agent.
type Info struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// Describe parses ua. An empty header yields the zero Info.
func Describe(ua string) Info {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Info{}
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OS()
	if os == "" {
		os = parsed.Platform()
	}
	return Info{
		Browser: strings.TrimSpace(browser),
		OS:      strings.TrimSpace(os),
		Mobile:  parsed.Mobile(),
		Bot:     parsed.Bot(),
	}
}

// ParseUserAgent returns a display label such as "Firefox on Linux x86_64".
func ParseUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return unknownDevice
	}
	info := Describe(ua)
	browser := info.Browser
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := info.OS
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}
