package sdm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A typical 72-cell monocrystalline module.
func testDevice() Device {
	return Device{
		Voc:      46.0,
		Isc:      9.2,
		Vmp:      37.5,
		Imp:      8.6,
		Ns:       72,
		Kv:       -0.30,
		Ki:       0.05,
		GammaPmp: -0.40,
		Celltype: "monoSi",
	}
}

func TestFitReferenceReproducesNameplate(t *testing.T) {
	d := testDevice()
	p, err := FitReference(d)
	require.NoError(t, err)

	assert.Greater(t, p.IL, 0.0)
	assert.Greater(t, p.I0, 0.0)
	assert.GreaterOrEqual(t, p.Rs, 0.0)
	assert.Greater(t, p.Rsh, 0.0)

	// The fit pins the maximum power point current
	assert.InDelta(t, d.Imp, CurrentAt(p, d.Vmp), 1e-3)
	// Open circuit and short circuit come out close to the datasheet
	assert.InDelta(t, d.Voc, OpenCircuit(p), 1e-3)
	assert.InDelta(t, d.Isc, CurrentAt(p, 0), 0.05)
}

func TestFitReferenceRejectsBadNameplate(t *testing.T) {
	cases := map[string]Device{
		"zero voc":         {Isc: 9, Vmp: 30, Imp: 8, Ns: 60, Celltype: "monoSi"},
		"vmp above voc":    {Voc: 30, Isc: 9, Vmp: 35, Imp: 8, Ns: 60, Celltype: "monoSi"},
		"imp above isc":    {Voc: 46, Isc: 8, Vmp: 37, Imp: 9, Ns: 72, Celltype: "monoSi"},
		"zero ns":          {Voc: 46, Isc: 9.2, Vmp: 37.5, Imp: 8.6, Celltype: "monoSi"},
		"unknown celltype": {Voc: 46, Isc: 9.2, Vmp: 37.5, Imp: 8.6, Ns: 72, Celltype: "perovskite"},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FitReference(d)
			assert.Error(t, err)
		})
	}
}

func TestSimulateAtStandardConditions(t *testing.T) {
	d := testDevice()
	curve, summary, err := Simulate(d, 1000, 25, 200)
	require.NoError(t, err)
	require.Len(t, curve.Voltages, 200)

	assert.InDelta(t, d.Voc, summary.Voc, 0.1)
	assert.InDelta(t, d.Isc, summary.Isc, 0.05)

	// Pmp lands near the datasheet maximum power
	nameplate := d.Vmp * d.Imp
	assert.InEpsilon(t, nameplate, summary.Pmp, 0.05)
	assert.GreaterOrEqual(t, summary.Pmp, nameplate*0.99)
}

func TestSimulateCurveShape(t *testing.T) {
	curve, summary, err := Simulate(testDevice(), 1000, 25, 200)
	require.NoError(t, err)

	require.Len(t, curve.Currents, 200)
	require.Len(t, curve.Powers, 200)

	assert.Equal(t, 0.0, curve.Voltages[0])
	assert.InDelta(t, summary.Voc, curve.Voltages[199], 1e-6)
	assert.InDelta(t, 0.0, curve.Currents[199], 1e-3)

	maxPower := 0.0
	for i := range curve.Voltages {
		if i > 0 {
			assert.Greater(t, curve.Voltages[i], curve.Voltages[i-1], "voltage grid must ascend")
			assert.LessOrEqual(t, curve.Currents[i], curve.Currents[i-1]+1e-9, "current must not increase with voltage")
		}
		assert.GreaterOrEqual(t, curve.Currents[i], 0.0)
		assert.InDelta(t, curve.Voltages[i]*curve.Currents[i], curve.Powers[i], 1e-3)
		if curve.Powers[i] > maxPower {
			maxPower = curve.Powers[i]
		}
	}
	assert.InDelta(t, maxPower, summary.Pmp, 1e-3)
}

func TestSimulateZeroIrradiance(t *testing.T) {
	d := testDevice()
	curve, summary, err := Simulate(d, 0, 25, 200)
	require.NoError(t, err)

	assert.Equal(t, Summary{}, summary)
	assert.Equal(t, 0.0, curve.Voltages[0])
	assert.InDelta(t, d.Voc, curve.Voltages[199], 1e-6)
	for i := range curve.Currents {
		assert.Equal(t, 0.0, curve.Currents[i])
		assert.Equal(t, 0.0, curve.Powers[i])
	}
}

func TestSimulateEnvironmentalResponse(t *testing.T) {
	d := testDevice()

	_, stc, err := Simulate(d, 1000, 25, 200)
	require.NoError(t, err)

	_, hot, err := Simulate(d, 1000, 60, 200)
	require.NoError(t, err)
	assert.Less(t, hot.Voc, stc.Voc, "hotter cells lose open-circuit voltage")
	assert.Less(t, hot.Pmp, stc.Pmp)

	_, dim, err := Simulate(d, 500, 25, 200)
	require.NoError(t, err)
	assert.InEpsilon(t, stc.Isc/2, dim.Isc, 0.05, "short-circuit current tracks irradiance")
	assert.Less(t, dim.Pmp, stc.Pmp)
}

func TestSimulateOtherTechnologies(t *testing.T) {
	// Crystalline technologies handle a crystalline fill factor
	for _, celltype := range []string{"multiSi", "polySi"} {
		t.Run(celltype, func(t *testing.T) {
			d := testDevice()
			d.Celltype = celltype
			_, summary, err := Simulate(d, 1000, 25, 200)
			require.NoError(t, err)
			assert.Greater(t, summary.Pmp, 0.0)
		})
	}

	// Thin-film plates have lower fill factors to go with the higher
	// ideality factors
	thinFilm := Device{
		Voc:      23.0,
		Isc:      1.2,
		Vmp:      17.0,
		Imp:      1.0,
		Ns:       36,
		Kv:       -0.28,
		Ki:       0.07,
		GammaPmp: -0.21,
	}
	for _, celltype := range []string{"cis", "cigs", "cdte", "amorphous"} {
		t.Run(celltype, func(t *testing.T) {
			d := thinFilm
			d.Celltype = celltype
			_, summary, err := Simulate(d, 1000, 25, 200)
			require.NoError(t, err)
			assert.Greater(t, summary.Pmp, 0.0)
		})
	}
}

func TestFitReferenceRejectsImpossibleFillFactor(t *testing.T) {
	// An amorphous diode cannot reproduce a crystalline fill factor
	d := testDevice()
	d.Celltype = "amorphous"
	_, err := FitReference(d)
	assert.Error(t, err)
}
