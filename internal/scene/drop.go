package scene

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"math/rand"

	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/geom"
	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/physics"
	"github.com/san-kum/posegen/internal/session"
)

const DropType = "drop"

// DropParams configure the bundled drop scene: a random pile of spheres
// released above a plane and photographed from straight above once settled.
type DropParams struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FocalLength  float64 `yaml:"focal_length"`
	CameraHeight float64 `yaml:"camera_height"`
	MinObjects   int     `yaml:"min_objects"`
	MaxObjects   int     `yaml:"max_objects"`
	MinRadius    float64 `yaml:"min_radius"`
	MaxRadius    float64 `yaml:"max_radius"`
	NumLabels    int     `yaml:"num_labels"`
	Spread       float64 `yaml:"spread"`
	DropHeight   float64 `yaml:"drop_height"`
	SettleTime   float64 `yaml:"settle_time"`
	Integrator   string  `yaml:"integrator"`
}

func DefaultDropParams() DropParams {
	return DropParams{
		Width:        320,
		Height:       240,
		CameraHeight: 0.8,
		MinObjects:   3,
		MaxObjects:   8,
		MinRadius:    0.02,
		MaxRadius:    0.06,
		NumLabels:    10,
		Spread:       0.15,
		DropHeight:   0.3,
		SettleTime:   1.0,
		Integrator:   physics.IntegratorVerlet,
	}
}

func (p DropParams) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("resolution must be positive, got %dx%d", p.Width, p.Height)
	case p.FocalLength <= 0:
		return fmt.Errorf("focal length must be positive, got %f", p.FocalLength)
	case p.MinObjects < 0 || p.MaxObjects < p.MinObjects:
		return fmt.Errorf("invalid object count range [%d, %d]", p.MinObjects, p.MaxObjects)
	case p.MinRadius <= 0 || p.MaxRadius < p.MinRadius:
		return fmt.Errorf("invalid radius range [%f, %f]", p.MinRadius, p.MaxRadius)
	case p.NumLabels <= 0:
		return fmt.Errorf("num_labels must be positive, got %d", p.NumLabels)
	case p.CameraHeight <= 2*p.MaxRadius:
		return fmt.Errorf("camera height %f must clear the largest object", p.CameraHeight)
	case p.SettleTime < 0:
		return fmt.Errorf("settle time must not be negative, got %f", p.SettleTime)
	}
	return nil
}

type dropObject struct {
	body   int
	label  int
	radius float64
}

type dropScene struct {
	cfg    Config
	params DropParams
	seed   int64
	rng    *rand.Rand
	log    *slog.Logger

	world   *physics.World
	sess    *session.Session
	palette []color.RGBA
	frames  int
}

// NewDrop builds the drop generator for seed.
func NewDrop(cfg Config, seed int64, log *slog.Logger) (Generator, error) {
	params := DefaultDropParams()
	if err := cfg.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.FocalLength == 0 {
		params.FocalLength = float64(params.Width)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("drop scene: %w", err)
	}
	return &dropScene{
		cfg:    cfg,
		params: params,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
		log:    logging.OrDiscard(log).With("scene", DropType, "seed", seed),
	}, nil
}

func (d *dropScene) Connect(ctx context.Context, load bool) error {
	world, err := physics.NewWorld(d.params.Integrator)
	if err != nil {
		return err
	}
	sess := session.New(world, d.cfg.SessionOptions(d.log))
	if err := sess.Connect(ctx, d.cfg.GPURenderer, false); err != nil {
		return err
	}
	d.world, d.sess = world, sess
	if load {
		d.palette = labelPalette(d.params.NumLabels)
	}
	return nil
}

func (d *dropScene) Disconnect() error {
	if d.sess == nil {
		return nil
	}
	return d.sess.Disconnect()
}

func (d *dropScene) MakeNewScene(ctx context.Context) (*frame.Record, error) {
	if d.sess == nil {
		return nil, session.ErrNotConnected
	}
	client, err := d.sess.ClientID()
	if err != nil {
		return nil, err
	}
	if d.palette == nil {
		d.palette = labelPalette(d.params.NumLabels)
	}
	if err := d.world.RemoveBodies(client); err != nil {
		return nil, err
	}

	objects, err := d.spawn(client)
	if err != nil {
		return nil, err
	}
	if err := d.sess.RunSimulation(d.params.SettleTime); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	bodies, err := d.world.Bodies(client)
	if err != nil {
		return nil, err
	}
	simTime, err := d.world.SimTime(client)
	if err != nil {
		return nil, err
	}

	rec := d.render(objects, bodies)
	rec.Annotations["frame_info"] = map[string]any{
		"seed":      d.seed,
		"frame":     d.frames,
		"sim_time":  simTime,
		"n_objects": len(objects),
	}
	d.frames++
	d.log.Log(ctx, logging.LevelTrace, "scene captured", "frame", d.frames-1, "objects", len(objects))
	return rec, nil
}

func (d *dropScene) spawn(client int) ([]dropObject, error) {
	p := d.params
	n := p.MinObjects
	if p.MaxObjects > p.MinObjects {
		n += d.rng.Intn(p.MaxObjects - p.MinObjects + 1)
	}
	objects := make([]dropObject, 0, n)
	for i := 0; i < n; i++ {
		label := 1 + d.rng.Intn(p.NumLabels)
		radius := p.MinRadius + d.rng.Float64()*(p.MaxRadius-p.MinRadius)
		pos := geom.Vec3{
			(d.rng.Float64()*2 - 1) * p.Spread,
			(d.rng.Float64()*2 - 1) * p.Spread,
			p.DropHeight + float64(i)*2*p.MaxRadius,
		}
		id, err := d.world.AddSphere(client, physics.SphereSpec{
			Name:        objectName(label),
			Radius:      radius,
			Mass:        radius * radius * radius * 1000,
			Position:    pos,
			Orientation: randomQuat(d.rng),
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, dropObject{body: id, label: label, radius: radius})
	}
	return objects, nil
}

func objectName(label int) string { return fmt.Sprintf("obj_%06d", label) }

func randomQuat(rng *rand.Rand) geom.Quat {
	return geom.Quat{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}.Normalize()
}

// labelPalette spreads hues evenly so each label class has a stable color.
func labelPalette(n int) []color.RGBA {
	out := make([]color.RGBA, n+1)
	out[0] = color.RGBA{100, 100, 100, 255}
	for i := 1; i <= n; i++ {
		h := float64(i-1) / float64(n)
		out[i] = hsv(h, 0.7, 0.95)
	}
	return out
}

func hsv(h, s, v float64) color.RGBA {
	i := math.Floor(h * 6)
	f := h*6 - i
	p, q, t := v*(1-s), v*(1-f*s), v*(1-(1-f)*s)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}

// cameraPose looks straight down the world z axis from height h; camera x is
// world x and camera y is world -y.
func cameraPose(h float64) geom.Transform {
	return geom.Transform{
		R: [3][3]float64{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}},
		T: geom.Vec3{0, 0, h},
	}
}

func (d *dropScene) intrinsics() [][]float64 {
	p := d.params
	return [][]float64{
		{p.FocalLength, 0, float64(p.Width) / 2},
		{0, p.FocalLength, float64(p.Height) / 2},
		{0, 0, 1},
	}
}

// render rasterizes the settled spheres with a z-buffer into RGB, depth and
// a mask whose value is body id + 1 (0 is background).
func (d *dropScene) render(objects []dropObject, bodies []physics.Body) *frame.Record {
	p := d.params
	w, h := p.Width, p.Height
	f := p.FocalLength
	cx, cy := float64(w)/2, float64(h)/2

	rgb := image.NewRGBA(image.Rect(0, 0, w, h))
	mask := image.NewGray16(image.Rect(0, 0, w, h))
	depth := make([]float32, w*h)

	twc := cameraPose(p.CameraHeight)
	tcw := twc.Inverse()

	// Ground plane: camera looks straight down, so depth is constant.
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			depth[py*w+px] = float32(p.CameraHeight)
			xw := (float64(px) + 0.5 - cx) * p.CameraHeight / f
			yw := -(float64(py) + 0.5 - cy) * p.CameraHeight / f
			shade := uint8(95)
			if (int(math.Floor(xw/0.1))+int(math.Floor(yw/0.1)))%2 == 0 {
				shade = 115
			}
			rgb.SetRGBA(px, py, color.RGBA{shade, shade, shade, 255})
		}
	}

	byID := make(map[int]physics.Body, len(bodies))
	for _, b := range bodies {
		byID[b.ID] = b
	}
	visible := make(map[int]bool, len(objects))

	for _, obj := range objects {
		b := byID[obj.body]
		pc := tcw.Apply(b.Position)
		if pc[2] <= b.Radius {
			continue
		}
		u := f*pc[0]/pc[2] + cx
		v := f*pc[1]/pc[2] + cy
		rpx := f * b.Radius / pc[2]
		base := d.palette[obj.label]

		x0, x1 := clamp(int(math.Floor(u-rpx)), 0, w-1), clamp(int(math.Ceil(u+rpx)), 0, w-1)
		y0, y1 := clamp(int(math.Floor(v-rpx)), 0, h-1), clamp(int(math.Ceil(v+rpx)), 0, h-1)
		for py := y0; py <= y1; py++ {
			for px := x0; px <= x1; px++ {
				du, dv := float64(px)+0.5-u, float64(py)+0.5-v
				rr := (du*du + dv*dv) / (rpx * rpx)
				if rr > 1 {
					continue
				}
				nz := math.Sqrt(1 - rr)
				z := pc[2] - b.Radius*nz
				idx := py*w + px
				if float32(z) >= depth[idx] {
					continue
				}
				depth[idx] = float32(z)
				k := 0.35 + 0.65*nz
				rgb.SetRGBA(px, py, color.RGBA{
					uint8(float64(base.R) * k),
					uint8(float64(base.G) * k),
					uint8(float64(base.B) * k),
					255,
				})
				mask.SetGray16(px, py, color.Gray16{Y: uint16(b.ID + 1)})
			}
		}
	}

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			if id := mask.Gray16At(px, py).Y; id > 0 {
				visible[int(id)-1] = true
			}
		}
	}

	annotated := make([]any, 0, len(objects))
	for _, obj := range objects {
		b := byID[obj.body]
		two := b.Pose()
		annotated = append(annotated, map[string]any{
			"name":    objectName(obj.label),
			"label":   obj.label,
			"body_id": b.ID,
			"mask_id": b.ID + 1,
			"radius":  b.Radius,
			"TWO":     two.Matrix(),
			"TCO":     tcw.Mul(two).Matrix(),
			"visible": visible[b.ID],
		})
	}

	return &frame.Record{
		Camera: frame.Camera{RGB: rgb, Depth: depth, Mask: mask},
		Annotations: map[string]any{
			"camera": map[string]any{
				"K":          d.intrinsics(),
				"TWC":        twc.Matrix(),
				"resolution": []any{h, w},
			},
			"objects": annotated,
		},
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
