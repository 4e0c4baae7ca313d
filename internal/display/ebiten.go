package display

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/AirRec/internal/transport"
)

var keyBindings = []struct {
	key ebiten.Key
	cmd transport.CommandType
}{
	{ebiten.KeyR, transport.CommandStart},
	{ebiten.KeyS, transport.CommandStop},
}

// Viewer renders frames with Ebitengine.
type Viewer struct {
	title     string
	onCommand CommandFunc
	recording func() bool

	mu     sync.Mutex
	frame  *image.RGBA
	status Status
	dirty  bool

	img *ebiten.Image // draw goroutine only
}

// NewViewer creates a viewer. onCommand may be nil.
func NewViewer(title string, onCommand CommandFunc) *Viewer {
	return &Viewer{title: title, onCommand: onCommand}
}

// SetRecordingFunc sets the source of the recording indicator.
func (v *Viewer) SetRecordingFunc(f func() bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recording = f
}

// SetFrame replaces the displayed frame. Safe for concurrent use.
func (v *Viewer) SetFrame(img *image.RGBA, pts int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frame = img
	v.dirty = true
	v.status.Frames++
	v.status.LastPTS = pts
	v.status.Width = img.Bounds().Dx()
	v.status.Height = img.Bounds().Dy()
}

// ShowPayload decodes p and displays it.
func (v *Viewer) ShowPayload(p transport.Payload) error {
	img, err := p.Image()
	if err != nil {
		return err
	}
	v.SetFrame(img, p.PTS)
	return nil
}

// Status returns the current overlay state.
func (v *Viewer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.status
	if v.recording != nil {
		s.Recording = v.recording()
	}
	return s
}

// Run starts the game loop. It must be called from the main goroutine.
func (v *Viewer) Run() error {
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(v.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(v)
}

func (v *Viewer) Update() error {
	if v.onCommand == nil {
		return nil
	}
	for _, b := range keyBindings {
		if inpututil.IsKeyJustPressed(b.key) {
			v.onCommand(b.cmd)
		}
	}
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	v.mu.Lock()
	frame, dirty := v.frame, v.dirty
	v.dirty = false
	v.mu.Unlock()

	if frame != nil {
		fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
		if v.img == nil || v.img.Bounds().Dx() != fw || v.img.Bounds().Dy() != fh {
			v.img = ebiten.NewImage(fw, fh)
			dirty = true
		}
		if dirty {
			v.img.WritePixels(frame.Pix)
		}

		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(fw), float64(fh))
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		screen.DrawImage(v.img, op)
	}

	ebitenutil.DebugPrint(screen, v.Status().String())
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
