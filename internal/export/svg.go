package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/simbridge/internal/storage"
)

type Point struct{ X, Y float64 }

// FPSSeries turns recorded samples into a time/fps series.
func FPSSeries(samples []storage.Sample) []Point {
	points := make([]Point, len(samples))
	for i, s := range samples {
		points[i] = Point{X: s.Time, Y: float64(s.FPS)}
	}
	return points
}

type bounds struct{ minX, minY, rangeX, rangeY float64 }

// fit returns padded bounds covering every point.
func fit(points []Point) bounds {
	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	return bounds{minX: minX, minY: minY, rangeX: rangeX * 1.2, rangeY: rangeY * 1.2}
}

func (b bounds) project(p Point, width, height int) (float64, float64) {
	x := (p.X - b.minX) / b.rangeX * float64(width)
	y := float64(height) - (p.Y-b.minY)/b.rangeY*float64(height)
	return x, y
}

func header(sb *strings.Builder, width, height int) {
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))
}

// SeriesSVG draws a polyline through points.
func SeriesSVG(points []Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}
	b := fit(points)

	var sb strings.Builder
	header(&sb, width, height)
	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, strokeColor))
	for i, p := range points {
		x, y := b.project(p, width, height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}
	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// ObjectsSVG draws a side view (x against height) of final object positions.
func ObjectsSVG(objects []storage.ObjectPose, width, height int) string {
	if len(objects) == 0 {
		return ""
	}
	points := make([]Point, len(objects))
	for i, o := range objects {
		points[i] = Point{X: o.Position[0], Y: o.Position[1]}
	}
	b := fit(points)

	var sb strings.Builder
	header(&sb, width, height)
	sb.WriteString(`<g fill="#00ccff" font-family="monospace" font-size="9">
`)
	for i, p := range points {
		x, y := b.project(p, width, height)
		sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="3"><title>%s</title></circle>
`, x, y, objects[i].Name))
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}
