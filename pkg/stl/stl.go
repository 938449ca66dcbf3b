// Package stl reads and writes STL surface models and turns them into point
// sets for surface distance computation.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"segcompare/internal/models"
)

const (
	headerSize   = 80
	triangleSize = 50 // 12 float32 + uint16 attribute
)

// Triangle is one STL facet
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// SaveToSTL writes triangles to a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create stl file %s", filename)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := Write(w, triangles); err != nil {
		return errors.Wrapf(err, "write stl file %s", filename)
	}
	return w.Flush()
}

// Write encodes triangles in binary STL format. Triangles without a normal
// get one computed from their winding.
func Write(w io.Writer, triangles []Triangle) error {
	header := make([]byte, headerSize)
	copy(header, "segcompare binary STL")
	if _, err := w.Write(header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}
	for _, tri := range triangles {
		if tri.Normal == ([3]float32{}) {
			tri.Normal = FaceNormal(tri.Vertex1, tri.Vertex2, tri.Vertex3)
		}
		record := struct {
			Normal, V1, V2, V3 [3]float32
			Attribute          uint16
		}{tri.Normal, tri.Vertex1, tri.Vertex2, tri.Vertex3, 0}
		if err := binary.Write(w, binary.LittleEndian, &record); err != nil {
			return err
		}
	}
	return nil
}

// LoadSTL reads a binary or ASCII STL file
func LoadSTL(filename string) ([]Triangle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read stl file %s", filename)
	}
	triangles, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode stl file %s", filename)
	}
	return triangles, nil
}

// Decode parses STL content, detecting binary or ASCII encoding. Binary
// files may also start with "solid", so the declared triangle count decides.
func Decode(data []byte) ([]Triangle, error) {
	if len(data) >= headerSize+4 {
		count := binary.LittleEndian.Uint32(data[headerSize : headerSize+4])
		if int64(len(data)) == headerSize+4+int64(count)*triangleSize {
			return decodeBinary(data[headerSize+4:], int(count))
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) {
		return decodeASCII(data)
	}
	return nil, errors.New("not an STL file: size does not match triangle count and no solid header")
}

func decodeBinary(body []byte, count int) ([]Triangle, error) {
	triangles := make([]Triangle, count)
	for i := 0; i < count; i++ {
		rec := body[i*triangleSize : (i+1)*triangleSize]
		var vals [12]float32
		for k := range vals {
			vals[k] = math.Float32frombits(binary.LittleEndian.Uint32(rec[k*4:]))
		}
		for k := 3; k < 12; k++ {
			if !finite(vals[k]) {
				return nil, errors.Errorf("triangle %d has a non-finite vertex", i)
			}
		}
		triangles[i] = Triangle{
			Normal:  [3]float32{vals[0], vals[1], vals[2]},
			Vertex1: [3]float32{vals[3], vals[4], vals[5]},
			Vertex2: [3]float32{vals[6], vals[7], vals[8]},
			Vertex3: [3]float32{vals[9], vals[10], vals[11]},
		}
	}
	return triangles, nil
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func decodeASCII(data []byte) ([]Triangle, error) {
	var (
		triangles []Triangle
		current   Triangle
		vertices  int
		lineNo    int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "facet":
			current = Triangle{}
			vertices = 0
			if len(fields) == 5 && fields[1] == "normal" {
				v, err := parseVector(fields[2:])
				if err != nil {
					return nil, errors.Wrapf(err, "line %d", lineNo)
				}
				current.Normal = v
			}
		case "vertex":
			if len(fields) != 4 {
				return nil, errors.Errorf("line %d: vertex needs 3 coordinates", lineNo)
			}
			v, err := parseVector(fields[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			if !finite(v[0]) || !finite(v[1]) || !finite(v[2]) {
				return nil, errors.Errorf("line %d: non-finite vertex", lineNo)
			}
			switch vertices {
			case 0:
				current.Vertex1 = v
			case 1:
				current.Vertex2 = v
			case 2:
				current.Vertex3 = v
			default:
				return nil, errors.Errorf("line %d: facet has more than 3 vertices", lineNo)
			}
			vertices++
		case "endfacet":
			if vertices != 3 {
				return nil, errors.Errorf("line %d: facet has %d vertices", lineNo, vertices)
			}
			triangles = append(triangles, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return triangles, nil
}

func parseVector(fields []string) ([3]float32, error) {
	var v [3]float32
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, errors.Wrapf(err, "parse coordinate %q", fields[i])
		}
		v[i] = float32(f)
	}
	return v, nil
}

// Points returns the distinct vertices of triangles in first-seen order
func Points(triangles []Triangle) []models.Point3D {
	seen := make(map[[3]float32]struct{}, len(triangles)*3)
	var pts []models.Point3D
	for _, tri := range triangles {
		for _, v := range [3][3]float32{tri.Vertex1, tri.Vertex2, tri.Vertex3} {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			pts = append(pts, models.Point3D{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
		}
	}
	return pts
}

// LoadMesh reads an STL file as a surface point set named after the file
func LoadMesh(filename string) (*models.SurfaceMesh, error) {
	triangles, err := LoadSTL(filename)
	if err != nil {
		return nil, err
	}
	return &models.SurfaceMesh{
		Name:   strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		Points: Points(triangles),
	}, nil
}

// FaceNormal computes the unit normal of a triangle from its winding
func FaceNormal(v1, v2, v3 [3]float32) [3]float32 {
	ux, uy, uz := v2[0]-v1[0], v2[1]-v1[1], v2[2]-v1[2]
	vx, vy, vz := v3[0]-v1[0], v3[1]-v1[1], v3[2]-v1[2]
	n := [3]float32{uy*vz - uz*vy, uz*vx - ux*vz, ux*vy - uy*vx}
	mag := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if mag > 0 {
		n[0] /= mag
		n[1] /= mag
		n[2] /= mag
	}
	return n
}
