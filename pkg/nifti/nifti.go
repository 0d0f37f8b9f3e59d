// Package nifti implements a minimal reader and writer for single-file
// NIfTI-1 images (.nii and .nii.gz). Voxel data is decoded into float64 and
// can be released explicitly once a statistic over it has been computed, so
// that peak memory stays bounded to roughly one 4-D volume at a time.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
)

const headerSize = 348

// header is the fixed 348-byte NIfTI-1 header.
type header struct {
	SizeofHdr                      int32
	DataType                       [10]byte
	DBName                         [18]byte
	Extents                        int32
	SessionError                   int16
	Regular                        byte
	DimInfo                        byte
	Dim                            [8]int16
	IntentP1, IntentP2, IntentP3   float32
	IntentCode                     int16
	Datatype                       int16
	Bitpix                         int16
	SliceStart                     int16
	Pixdim                         [8]float32
	VoxOffset                      float32
	SclSlope                       float32
	SclInter                       float32
	SliceEnd                       int16
	SliceCode                      byte
	XyztUnits                      byte
	CalMax, CalMin                 float32
	SliceDuration                  float32
	Toffset                        float32
	Glmax, Glmin                   int32
	Descrip                        [80]byte
	AuxFile                        [24]byte
	QformCode, SformCode           int16
	QuaternB, QuaternC, QuaternD   float32
	QoffsetX, QoffsetY, QoffsetZ   float32
	SrowX, SrowY, SrowZ            [4]float32
	IntentName                     [16]byte
	Magic                          [4]byte
}

// Image is a decoded NIfTI-1 image.
type Image struct {
	// Path is the resolved file the image was loaded from.
	Path string

	data []float64
	dims []int
	vox  []float64
}

// Resolve returns the first existing file among path, path.nii and
// path.nii.gz, or "" when none exists.
func Resolve(path string) string {
	if path == "" {
		return ""
	}
	for _, ext := range []string{"", ".nii", ".nii.gz"} {
		p := path + ext
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads a NIfTI-1 image, resolving the .nii/.nii.gz extension when the
// given path carries none. The voxel data is decoded eagerly into float64
// with the header's scaling slope and intercept applied.
func Load(path string) (*Image, error) {
	resolved := Resolve(path)
	if resolved == "" {
		return nil, fmt.Errorf("no such image: %s", path)
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", resolved, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(resolved, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open image %s: %w", resolved, err)
		}
		defer gz.Close()
		r = gz
	}

	img, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", resolved, err)
	}
	img.Path = resolved
	return img, nil
}

func decode(r io.Reader) (*Image, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(raw[:4]) != headerSize {
		if binary.BigEndian.Uint32(raw[:4]) != headerSize {
			return nil, fmt.Errorf("not a NIfTI-1 file (sizeof_hdr=%d)", binary.LittleEndian.Uint32(raw[:4]))
		}
		order = binary.BigEndian
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if hdr.Magic[0] != 'n' || hdr.Magic[2] != '1' {
		return nil, fmt.Errorf("unsupported magic %q", hdr.Magic[:])
	}

	ndim := int(hdr.Dim[0])
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("invalid dimension count %d", ndim)
	}
	dims := make([]int, ndim)
	vox := make([]float64, ndim)
	nvox := 1
	for i := 0; i < ndim; i++ {
		d := int(hdr.Dim[i+1])
		if d < 1 {
			d = 1
		}
		dims[i] = d
		vox[i] = float64(hdr.Pixdim[i+1])
		nvox *= d
	}

	// Skip any header extension up to the voxel data offset.
	if skip := int64(hdr.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("seek voxel data: %w", err)
		}
	}

	data, err := decodeVoxels(r, order, hdr.Datatype, nvox)
	if err != nil {
		return nil, err
	}

	// Apply scaling unless it is absent or the identity.
	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i, v := range data {
			data[i] = v*slope + inter
		}
	}

	return &Image{data: data, dims: dims, vox: vox}, nil
}

func decodeVoxels(r io.Reader, order binary.ByteOrder, datatype int16, nvox int) ([]float64, error) {
	size := map[int16]int{
		dtUint8: 1, dtInt8: 1,
		dtInt16: 2, dtUint16: 2,
		dtInt32: 4, dtFloat32: 4,
		dtFloat64: 8,
	}[datatype]
	if size == 0 {
		return nil, fmt.Errorf("unsupported datatype code %d", datatype)
	}

	raw := make([]byte, nvox*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read voxel data: %w", err)
	}

	data := make([]float64, nvox)
	for i := 0; i < nvox; i++ {
		b := raw[i*size:]
		switch datatype {
		case dtUint8:
			data[i] = float64(b[0])
		case dtInt8:
			data[i] = float64(int8(b[0]))
		case dtInt16:
			data[i] = float64(int16(order.Uint16(b)))
		case dtUint16:
			data[i] = float64(order.Uint16(b))
		case dtInt32:
			data[i] = float64(int32(order.Uint32(b)))
		case dtFloat32:
			data[i] = float64(math.Float32frombits(order.Uint32(b)))
		case dtFloat64:
			data[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return data, nil
}

// Data returns the decoded voxel values in NIfTI order (x fastest).
// It returns nil after Release.
func (im *Image) Data() []float64 {
	return im.data
}

// Dims returns the image dimensions.
func (im *Image) Dims() []int {
	return im.dims
}

// SpatialDims returns the first three dimensions, padded with 1 for images
// of lower rank.
func (im *Image) SpatialDims() []int {
	sp := []int{1, 1, 1}
	for i := 0; i < 3 && i < len(im.dims); i++ {
		sp[i] = im.dims[i]
	}
	return sp
}

// NVols returns the length of the fourth dimension, or 1 for 3-D images.
func (im *Image) NVols() int {
	if len(im.dims) < 4 {
		return 1
	}
	return im.dims[3]
}

// VoxelSizes returns the voxel extents of the first three dimensions in mm.
func (im *Image) VoxelSizes() []float64 {
	vs := []float64{1, 1, 1}
	for i := 0; i < 3 && i < len(im.vox); i++ {
		vs[i] = im.vox[i]
	}
	return vs
}

// Volume returns the voxels of the t-th 3-D volume of a 4-D image as a view
// into the decoded buffer.
func (im *Image) Volume(t int) []float64 {
	sp := im.SpatialDims()
	n := sp[0] * sp[1] * sp[2]
	return im.data[t*n : (t+1)*n]
}

// Release drops the decoded voxel buffer so its memory can be reclaimed
// before the next large image is loaded.
func (im *Image) Release() {
	im.data = nil
}

// Save writes data as a float64 little-endian NIfTI-1 image. A .gz suffix
// selects gzip compression. Up to four dimensions are supported.
func Save(path string, data []float64, dims []int, voxSizes []float64) error {
	if len(dims) < 1 || len(dims) > 4 {
		return fmt.Errorf("save image %s: unsupported dimension count %d", path, len(dims))
	}
	nvox := 1
	for _, d := range dims {
		nvox *= d
	}
	if nvox != len(data) {
		return fmt.Errorf("save image %s: %d voxels for dims %v", path, len(data), dims)
	}

	var hdr header
	hdr.SizeofHdr = headerSize
	hdr.Regular = 'r'
	hdr.Dim[0] = int16(len(dims))
	hdr.Pixdim[0] = 1
	for i := range hdr.Dim[1:] {
		hdr.Dim[i+1] = 1
		hdr.Pixdim[i+1] = 1
	}
	for i, d := range dims {
		hdr.Dim[i+1] = int16(d)
	}
	for i, v := range voxSizes {
		if i+1 < len(hdr.Pixdim) {
			hdr.Pixdim[i+1] = float32(v)
		}
	}
	hdr.Datatype = dtFloat64
	hdr.Bitpix = 64
	hdr.VoxOffset = 352
	hdr.SclSlope = 1
	copy(hdr.Magic[:], "n+1\x00")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image %s: %w", path, err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	werr := binary.Write(w, binary.LittleEndian, &hdr)
	if werr == nil {
		// Four alignment bytes pad the header to vox_offset.
		_, werr = w.Write(make([]byte, 4))
	}
	if werr == nil {
		werr = binary.Write(w, binary.LittleEndian, data)
	}
	if gz != nil && werr == nil {
		werr = gz.Close()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write image %s: %w", path, werr)
	}
	return nil
}
