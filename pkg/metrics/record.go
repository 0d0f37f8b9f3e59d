// Package metrics computes the QC summary statistics of one eddy-corrected
// diffusion dataset. Each extractor is a pure function over already-loaded
// arrays, gated by the caller on artifact presence, that accumulates its
// results into a Record.
package metrics

import "encoding/json"

// Key identifies one QC metric in the Record. The key set is closed: the
// extractors write only the constants declared here, so an unknown metric
// name is a compile-time error rather than a runtime surprise.
type Key string

const (
	KeyMotionAbs     Key = "motion_abs"
	KeyMotionRel     Key = "motion_rel"
	KeyMotionAbsMean Key = "motion_abs_mean"
	KeyMotionRelMean Key = "motion_rel_mean"

	KeyMotionV2VTransMean Key = "motion_v2v_trans_mean"
	KeyMotionV2VRotMean   Key = "motion_v2v_rot_mean"
	KeyMotionECLinStd     Key = "motion_ec_lin_std"

	KeyMotionS2VTrans        Key = "motion_s2v_trans"
	KeyMotionS2VRot          Key = "motion_s2v_rot"
	KeyMotionS2VTransVar     Key = "motion_s2v_trans_var"
	KeyMotionS2VRotVar       Key = "motion_s2v_rot_var"
	KeyMotionS2VTransStdMean Key = "motion_s2v_trans_std_mean"
	KeyMotionS2VRotStdMean   Key = "motion_s2v_rot_std_mean"

	KeyOutliersTot      Key = "outliers_tot"
	KeyOutliersTotBVal  Key = "outliers_tot_bval"
	KeyOutliersTotPE    Key = "outliers_tot_pe"

	KeyCNRMeanBVal Key = "cnr_mean_bval"
	KeyCNRStdBVal  Key = "cnr_std_bval"

	KeyResMean      Key = "res_mean"
	KeyFieldDispStd Key = "field_disp_std"
)

// Kind discriminates the value shapes a metric may take.
type Kind int

const (
	KindScalar Kind = iota
	KindVector
	KindMatrix
)

// Value is a tagged union of the float shapes stored in a Record.
type Value struct {
	kind   Kind
	scalar float64
	vec    []float64
	mat    [][]float64
}

// Scalar wraps a single float.
func Scalar(v float64) Value { return Value{kind: KindScalar, scalar: v} }

// Vector wraps a float series.
func Vector(v []float64) Value { return Value{kind: KindVector, vec: v} }

// Matrix wraps a 2-D float array.
func Matrix(v [][]float64) Value { return Value{kind: KindMatrix, mat: v} }

// Kind reports the value shape.
func (v Value) Kind() Kind { return v.kind }

// Float returns the scalar payload.
func (v Value) Float() float64 { return v.scalar }

// Floats returns the vector payload.
func (v Value) Floats() []float64 { return v.vec }

// FloatRows returns the matrix payload.
func (v Value) FloatRows() [][]float64 { return v.mat }

// Interface returns the payload as a plain nested value for serialization.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindVector:
		return v.vec
	case KindMatrix:
		return v.mat
	default:
		return v.scalar
	}
}

// MarshalJSON serializes the payload without the union wrapper.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Record accumulates QC metrics for one subject. It is created empty,
// populated incrementally by the extractors in artifact-probe order, and
// serialized once at the end of the run. It is owned by a single pipeline
// invocation and never shared across subjects.
type Record struct {
	order []Key
	vals  map[Key]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{vals: make(map[Key]Value)}
}

// SetScalar stores a single float under k.
func (r *Record) SetScalar(k Key, v float64) { r.set(k, Scalar(v)) }

// SetVector stores a float series under k.
func (r *Record) SetVector(k Key, v []float64) { r.set(k, Vector(v)) }

// SetMatrix stores a 2-D float array under k.
func (r *Record) SetMatrix(k Key, v [][]float64) { r.set(k, Matrix(v)) }

func (r *Record) set(k Key, v Value) {
	if _, ok := r.vals[k]; !ok {
		r.order = append(r.order, k)
	}
	r.vals[k] = v
}

// Get returns the value stored under k.
func (r *Record) Get(k Key) (Value, bool) {
	v, ok := r.vals[k]
	return v, ok
}

// Has reports whether k has been set.
func (r *Record) Has(k Key) bool {
	_, ok := r.vals[k]
	return ok
}

// Delete removes k, used when a partially computed metric must be withdrawn.
func (r *Record) Delete(k Key) {
	if _, ok := r.vals[k]; !ok {
		return
	}
	delete(r.vals, k)
	for i, key := range r.order {
		if key == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Keys returns the stored keys in insertion order.
func (r *Record) Keys() []Key {
	out := make([]Key, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of stored metrics.
func (r *Record) Len() int {
	return len(r.vals)
}
