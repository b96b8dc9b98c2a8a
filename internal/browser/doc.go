// Package browser groups the monitor.Browser implementations. The headless
// subpackage renders pages with Chrome over the DevTools protocol; the static
// subpackage fetches raw HTML with colly and cannot take screenshots.
package browser
