// Package volumeio loads and saves label volumes.
//
// Supported sources are NRRD files (attached .nrrd or detached .nhdr
// headers, raw or gzip encoding) and directories of 2D image slices.
package volumeio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"segcompare/internal/models"
)

// LabelMapKey is the NRRD key/value pair written for label maps
const LabelMapKey = "segcompare_labelmap"

// MaxVoxels bounds the grid size a header may declare
const MaxVoxels = 1 << 30

// maxDeflateRatio is the largest expansion a deflate stream can reach
const maxDeflateRatio = 1032

// header is the parsed NRRD header
type header struct {
	fields   map[string]string
	keyvals  map[string]string
	dataFile string
}

// sampleType describes an NRRD element type
type sampleType struct {
	size int
	read func(b []byte, order binary.ByteOrder) float64
}

var sampleTypes = map[string]sampleType{}

func registerType(t sampleType, names ...string) {
	for _, n := range names {
		sampleTypes[n] = t
	}
}

func init() {
	registerType(sampleType{1, func(b []byte, _ binary.ByteOrder) float64 { return float64(int8(b[0])) }},
		"signed char", "int8", "int8_t")
	registerType(sampleType{1, func(b []byte, _ binary.ByteOrder) float64 { return float64(b[0]) }},
		"uchar", "unsigned char", "uint8", "uint8_t")
	registerType(sampleType{2, func(b []byte, o binary.ByteOrder) float64 { return float64(int16(o.Uint16(b))) }},
		"short", "short int", "signed short", "signed short int", "int16", "int16_t")
	registerType(sampleType{2, func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint16(b)) }},
		"ushort", "unsigned short", "unsigned short int", "uint16", "uint16_t")
	registerType(sampleType{4, func(b []byte, o binary.ByteOrder) float64 { return float64(int32(o.Uint32(b))) }},
		"int", "signed int", "int32", "int32_t")
	registerType(sampleType{4, func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint32(b)) }},
		"uint", "unsigned int", "uint32", "uint32_t")
	registerType(sampleType{8, func(b []byte, o binary.ByteOrder) float64 { return float64(int64(o.Uint64(b))) }},
		"longlong", "long long", "long long int", "signed long long", "signed long long int", "int64", "int64_t")
	registerType(sampleType{8, func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint64(b)) }},
		"ulonglong", "unsigned long long", "unsigned long long int", "uint64", "uint64_t")
	registerType(sampleType{4, func(b []byte, o binary.ByteOrder) float64 { return float64(math.Float32frombits(o.Uint32(b))) }},
		"float")
	registerType(sampleType{8, func(b []byte, o binary.ByteOrder) float64 { return math.Float64frombits(o.Uint64(b)) }},
		"double")
}

// LoadNRRD reads a 2D or 3D NRRD volume. The volume is flagged as a label
// map when the header carries the segcompare_labelmap key, Slicer segment
// metadata, or the file name ends in "-label"/"_label"/".seg".
func LoadNRRD(filename string) (*models.LabelVolume, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open nrrd %s", filename)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	hdr, err := readHeader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read nrrd header %s", filename)
	}

	var data io.Reader = r
	dataFile := file
	if hdr.dataFile != "" {
		path := hdr.dataFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(filename), path)
		}
		detached, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open detached data %s", path)
		}
		defer detached.Close()
		data = bufio.NewReader(detached)
		dataFile = detached
	}

	info, err := dataFile.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat nrrd data %s", filename)
	}

	vol, err := decode(hdr, data, info.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "decode nrrd %s", filename)
	}
	vol.Name = volumeName(filename)
	vol.IsLabelMap = hdr.isLabelMap() || labelFileName(filename)
	return vol, nil
}

func readHeader(r *bufio.Reader) (*header, error) {
	magic, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(magic, "NRRD") {
		return nil, errors.New("missing NRRD magic")
	}

	hdr := &header{fields: map[string]string{}, keyvals: map[string]string{}}
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			// A blank line ends the header; EOF ends a detached header
			break
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		switch {
		case strings.HasPrefix(line, "#"):
		case strings.Contains(line, ":="):
			kv := strings.SplitN(line, ":=", 2)
			hdr.keyvals[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		case strings.Contains(line, ": "):
			kv := strings.SplitN(line, ": ", 2)
			hdr.fields[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
		default:
			return nil, errors.Errorf("malformed header line %q", line)
		}
		if err == io.EOF {
			break
		}
	}

	if f, ok := hdr.fields["data file"]; ok {
		hdr.dataFile = f
	} else if f, ok := hdr.fields["datafile"]; ok {
		hdr.dataFile = f
	}
	return hdr, nil
}

func (h *header) isLabelMap() bool {
	if v, ok := h.keyvals[LabelMapKey]; ok {
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	for k := range h.keyvals {
		if strings.HasPrefix(k, "Segment") && strings.HasSuffix(k, "_ID") {
			return true
		}
	}
	return false
}

// decode reads the voxels described by hdr. available is the size of the
// file holding the data; raw payloads cannot be larger than that.
func decode(hdr *header, data io.Reader, available int64) (*models.LabelVolume, error) {
	typeName := strings.ToLower(hdr.fields["type"])
	st, ok := sampleTypes[typeName]
	if !ok {
		return nil, errors.Errorf("unsupported type %q", hdr.fields["type"])
	}

	sizes, err := parseInts(hdr.fields["sizes"])
	if err != nil {
		return nil, errors.Wrap(err, "parse sizes")
	}
	switch len(sizes) {
	case 2:
		sizes = append(sizes, 1)
	case 3:
	default:
		return nil, errors.Errorf("expected 2 or 3 dimensions, got %d", len(sizes))
	}
	n := 1
	for _, s := range sizes {
		if s <= 0 {
			return nil, errors.Errorf("invalid sizes %v", sizes)
		}
		if s > MaxVoxels/n {
			return nil, errors.Errorf("sizes %v exceed %d voxels", sizes, MaxVoxels)
		}
		n *= s
	}

	var order binary.ByteOrder = binary.LittleEndian
	if strings.EqualFold(hdr.fields["endian"], "big") {
		order = binary.BigEndian
	}

	need := int64(n) * int64(st.size)
	switch enc := strings.ToLower(hdr.fields["encoding"]); enc {
	case "raw":
		if need > available {
			return nil, errors.Errorf("sizes %v need %d bytes, file has %d", sizes, need, available)
		}
	case "gzip", "gz":
		if need > available*maxDeflateRatio {
			return nil, errors.Errorf("sizes %v need %d bytes, more than %d compressed bytes can hold", sizes, need, available)
		}
		zr, err := gzip.NewReader(data)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer zr.Close()
		data = zr
	default:
		return nil, errors.Errorf("unsupported encoding %q", hdr.fields["encoding"])
	}

	vol := &models.LabelVolume{
		Width:     sizes[0],
		Height:    sizes[1],
		Depth:     sizes[2],
		VoxelSize: models.Point3D{X: 1, Y: 1, Z: 1},
	}
	raw := make([]byte, n*st.size)
	if _, err := io.ReadFull(data, raw); err != nil {
		return nil, errors.Wrapf(err, "read %d voxels", n)
	}
	vol.Data = make([]float64, n)
	for i := range vol.Data {
		vol.Data[i] = st.read(raw[i*st.size:], order)
	}

	if err := applyGeometry(hdr, vol); err != nil {
		return nil, err
	}
	return vol, nil
}

func applyGeometry(hdr *header, vol *models.LabelVolume) error {
	if s, ok := hdr.fields["spacings"]; ok {
		sp, err := parseFloats(strings.Fields(s))
		if err != nil {
			return errors.Wrap(err, "parse spacings")
		}
		setSpacing(vol, sp)
	}
	if s, ok := hdr.fields["space directions"]; ok {
		var sp []float64
		for _, vec := range strings.Fields(s) {
			if vec == "none" {
				continue
			}
			v, err := parseVector(vec)
			if err != nil {
				return errors.Wrap(err, "parse space directions")
			}
			sp = append(sp, math.Sqrt(v[0]*v[0]+v[1]*v[1]+v[2]*v[2]))
		}
		setSpacing(vol, sp)
	}
	if s, ok := hdr.fields["space origin"]; ok {
		v, err := parseVector(s)
		if err != nil {
			return errors.Wrap(err, "parse space origin")
		}
		// NRRD writes an unknown origin as nan components
		for i := range v {
			if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
				v[i] = 0
			}
		}
		vol.Origin = models.Point3D{X: v[0], Y: v[1], Z: v[2]}
	}
	return nil
}

func setSpacing(vol *models.LabelVolume, sp []float64) {
	dst := []*float64{&vol.VoxelSize.X, &vol.VoxelSize.Y, &vol.VoxelSize.Z}
	for i := 0; i < len(sp) && i < 3; i++ {
		if sp[i] > 0 && !math.IsNaN(sp[i]) {
			*dst[i] = sp[i]
		}
	}
}

// parseVector reads "(x,y,z)"
func parseVector(s string) ([3]float64, error) {
	var v [3]float64
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, errors.Errorf("expected 3 components in %q", s)
	}
	vals, err := parseFloats(parts)
	if err != nil {
		return v, err
	}
	copy(v[:], vals)
	return v, nil
}

func parseFloats(parts []string) ([]float64, error) {
	out := make([]float64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.EqualFold(p, "nan") {
			out[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func volumeName(filename string) string {
	base := filepath.Base(filename)
	for _, ext := range []string{".seg.nrrd", ".nrrd", ".nhdr"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func labelFileName(filename string) bool {
	base := strings.ToLower(filepath.Base(filename))
	if strings.HasSuffix(base, ".seg.nrrd") {
		return true
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(name, "-label") || strings.HasSuffix(name, "_label")
}

// SaveNRRD writes vol as an attached NRRD file. Integral data is stored as
// int32, anything else as double. The label map flag is kept as a key/value
// pair so LoadNRRD restores it.
func SaveNRRD(filename string, vol *models.LabelVolume, compress bool) error {
	if vol == nil || len(vol.Data) != vol.Width*vol.Height*vol.Depth {
		return errors.New("volume data does not match its dimensions")
	}

	integral := true
	for _, v := range vol.Data {
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			integral = false
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteString("NRRD0004\n")
	buf.WriteString("# written by segcompare\n")
	if integral {
		buf.WriteString("type: int32\n")
	} else {
		buf.WriteString("type: double\n")
	}
	buf.WriteString("dimension: 3\n")
	fmt.Fprintf(&buf, "sizes: %d %d %d\n", vol.Width, vol.Height, vol.Depth)
	fmt.Fprintf(&buf, "spacings: %g %g %g\n", orOne(vol.VoxelSize.X), orOne(vol.VoxelSize.Y), orOne(vol.VoxelSize.Z))
	fmt.Fprintf(&buf, "space origin: (%g,%g,%g)\n", vol.Origin.X, vol.Origin.Y, vol.Origin.Z)
	buf.WriteString("endian: little\n")
	if compress {
		buf.WriteString("encoding: gzip\n")
	} else {
		buf.WriteString("encoding: raw\n")
	}
	if vol.IsLabelMap {
		fmt.Fprintf(&buf, "%s:=1\n", LabelMapKey)
	}
	buf.WriteString("\n")

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create nrrd %s", filename)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "write nrrd header %s", filename)
	}

	var out io.Writer = w
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		out = zw
	}
	for _, v := range vol.Data {
		if integral {
			err = binary.Write(out, binary.LittleEndian, int32(v))
		} else {
			err = binary.Write(out, binary.LittleEndian, v)
		}
		if err != nil {
			return errors.Wrapf(err, "write nrrd data %s", filename)
		}
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return errors.Wrapf(err, "close gzip stream %s", filename)
		}
	}
	return w.Flush()
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
