// Package render draws boards as PNG images and as text grids.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Options control the HUD around the board.
type Options struct {
	Header   string
	Footer   string
	LastCell int // -1 for none
	ShowKeys bool
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, b board.Board, opts Options) ([]byte, error)
}

type pngRenderer struct{}

func NewPNGRenderer() BoardRenderer { return &pngRenderer{} }

const (
	boardSize    = 360
	sideMargin   = 24
	topMargin    = 96
	bottomMargin = 64
	panelHeight  = 40
	panelRadius  = 12
	panelPadX    = 24

	// Size of the rendered image.
	ImageWidth  = boardSize + sideMargin*2
	ImageHeight = boardSize + topMargin + bottomMargin
)

var (
	backgroundColor = color.RGBA{R: 18, G: 20, B: 30, A: 255}
	hudPanelColor   = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudShadowColor  = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary  = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextMuted    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	keyTextColor    = color.NRGBA{R: 120, G: 128, B: 160, A: 200}
)

var (
	faceOnce sync.Once
	hudFace  font.Face
	keyFace  font.Face
	faceErr  error
)

func faces() (font.Face, font.Face, error) {
	faceOnce.Do(func() {
		f, err := opentype.Parse(gobold.TTF)
		if err != nil {
			faceErr = fmt.Errorf("parse font: %w", err)
			return
		}
		hudFace, faceErr = opentype.NewFace(f, &opentype.FaceOptions{Size: 20, DPI: 72, Hinting: font.HintingFull})
		if faceErr != nil {
			return
		}
		keyFace, faceErr = opentype.NewFace(f, &opentype.FaceOptions{Size: 28, DPI: 72, Hinting: font.HintingFull})
	})
	return hudFace, keyFace, faceErr
}

func (r *pngRenderer) RenderPNG(ctx context.Context, b board.Board, opts Options) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	hud, keys, err := faces()
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, ImageWidth, ImageHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	origin := image.Pt(sideMargin, topMargin)
	if err := rasterizeBoard(img, b, origin, opts.LastCell); err != nil {
		return nil, err
	}
	if opts.ShowKeys {
		drawKeys(img, keys, b, origin)
	}

	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)
	drawer := &font.Drawer{Dst: img, Face: hud}
	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = "Tic-Tac-Toe"
	}
	top := image.Rect(boardRect.Min.X, (topMargin-panelHeight)/2, boardRect.Max.X, (topMargin-panelHeight)/2+panelHeight)
	drawPanel(img, drawer, top, header, hudTextPrimary)
	if footer := strings.TrimSpace(opts.Footer); footer != "" {
		y := boardRect.Max.Y + (bottomMargin-panelHeight)/2
		drawPanel(img, drawer, image.Rect(boardRect.Min.X, y, boardRect.Max.X, y+panelHeight), footer, hudTextMuted)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func rasterizeBoard(img *image.RGBA, b board.Board, origin image.Point, lastCell int) error {
	icon, err := oksvg.ReadIconStream(strings.NewReader(boardSVG(b, boardSize, lastCell)))
	if err != nil {
		return fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(float64(origin.X), float64(origin.Y), boardSize, boardSize)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return nil
}

func drawKeys(img *image.RGBA, face font.Face, b board.Board, origin image.Point) {
	cell := boardSize / 3
	drawer := &font.Drawer{Dst: img, Face: face, Src: image.NewUniform(keyTextColor)}
	for _, i := range b.EmptyCells() {
		rect := image.Rect(origin.X+(i%3)*cell, origin.Y+(i/3)*cell, origin.X+(i%3+1)*cell, origin.Y+(i/3+1)*cell)
		drawCenteredString(drawer, rect, strconv.Itoa(i+1), keyTextColor)
	}
}

func drawPanel(img *image.RGBA, drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	drawRoundedPanel(img, rect.Add(image.Pt(0, 4)), panelRadius, hudShadowColor)
	drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
	text = truncateWithEllipsis(drawer.Face, text, rect.Dx()-panelPadX*2)
	drawCenteredString(drawer, rect, text, clr)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if font.MeasureString(face, text).Round() <= maxWidth {
		return text
	}
	const ellipsis = "..."
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimSpace(string(runes)) + ellipsis
		if font.MeasureString(face, candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	corners := []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	}
	for _, c := range corners {
		drawQuarterDiscs(img, c, radius, rect, clr)
	}
}

// drawQuarterDiscs fills the part of a disc that lies in the corner areas
// of rect not already covered by the three body rectangles.
func drawQuarterDiscs(img *image.RGBA, center image.Point, radius int, rect image.Rectangle, clr color.Color) {
	inner := image.Rect(rect.Min.X+radius, rect.Min.Y+radius, rect.Max.X-radius, rect.Max.Y-radius)
	body := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > r2 {
				continue
			}
			p := image.Pt(center.X+x, center.Y+y)
			if !p.In(rect) || p.In(body) || (p.Y >= inner.Min.Y && p.Y < inner.Max.Y) {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 65535 - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/65535) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/65535) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/65535) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/65535) >> 8),
	})
}
