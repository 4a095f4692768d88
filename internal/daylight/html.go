package daylight

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lucarne/internal/daydir"
)

var monthlyPageTmpl = template.Must(template.New("daylight").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Camera}} daylight</title>
<style>
body { background: #111; color: #ddd; font-family: sans-serif; }
.month { display: inline-block; margin: 8px; vertical-align: top; text-align: center; }
.month img { image-rendering: pixelated; }
</style>
</head>
<body>
<h1>{{.Camera}}</h1>
{{range .Months}}
<div class="month">
<div>{{.Name}}</div>
<img src="{{.Image}}" width="{{.Width}}" height="{{$.DisplayHeight}}" usemap="#m{{.Name}}" alt="{{.Name}}">
<map name="m{{.Name}}">
{{range .Areas}}<area shape="rect" coords="{{.Coords}}" alt="{{.Day}}" href="{{.Href}}" title="{{.Day}}">
{{end}}</map>
</div>
{{end}}
</body>
</html>
`))

type monthArea struct {
	Coords string
	Day    string
	Href   string
}

type monthEntry struct {
	Name  string
	Image string
	// Width is the displayed width in pixels, one column per day of
	// the month.
	Width int
	Areas []monthArea
}

type pageData struct {
	Camera        string
	DisplayHeight int
	Months        []monthEntry
}

// Display scaling for the one-pixel-per-day composites. Area
// coordinates are in displayed pixels, so they scale with these.
const (
	displayColumnWidth = 8
	displayHeight      = 720
)

// WriteIndex regenerates <cameraDir>/daylight/index.html from the
// monthly composites on disk. Each day column is a clickable area
// linking to its day directory.
func WriteIndex(cameraDir, camera string) error {
	dir := filepath.Join(cameraDir, DaylightDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var months []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasSuffix(name, ".png") {
			months = append(months, strings.TrimSuffix(name, ".png"))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	data := pageData{Camera: camera, DisplayHeight: displayHeight}
	for _, ym := range months {
		t, err := time.Parse("2006-01", ym)
		if err != nil {
			continue
		}
		daysInMonth := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
		entry := monthEntry{
			Name:  ym,
			Image: ym + ".png",
			Width: daysInMonth * displayColumnWidth,
		}
		for day := 1; day <= daysInMonth; day++ {
			iso := fmt.Sprintf("%s-%02d", ym, day)
			entry.Areas = append(entry.Areas, monthArea{
				Coords: fmt.Sprintf("%d,0,%d,%d",
					(day-1)*displayColumnWidth, day*displayColumnWidth, displayHeight-1),
				Day:  iso,
				Href: "../" + iso + "/",
			})
		}
		data.Months = append(data.Months, entry)
	}

	var buf bytes.Buffer
	if err := monthlyPageTmpl.Execute(&buf, data); err != nil {
		return err
	}
	return daydir.WriteFileAtomic(filepath.Join(dir, "index.html"), buf.Bytes())
}
