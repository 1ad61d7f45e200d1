package calocell

import (
	"fmt"

	"gonum.org/v1/hdf5"
)

type EventDataHDF5 struct {
	evt_number  int32
	n_cells     int32
	n_missing   int32
	n_crosstalk int32
}

type RunInfoHDF5 struct {
	run_number int32
}

type CellHDF5 struct {
	evt_number int32
	hash       uint32
	sampling   int32
	detector   int32
	eta        float64
	phi        float64
	deta       float64
	dphi       float64
	e          float64
	et         float64
	tau        float64
	edep       float64
	tof        float64
	crosstalk  int8
	pulse      [PulseSamples]float64
}

type BunchHDF5 struct {
	evt_number int32
	hash       uint32
	bcid       int32
	edep       float64
	tof        float64
}

type ParticleHDF5 struct {
	evt_number int32
	pdgid      int32
	eta        float64
	phi        float64
	e          float64
}

type ExcessHDF5 struct {
	evt_number int32
	hash       uint32
	excess     [PulseSamples]float64
}

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

// Table is an extendible one-dimensional dataset of compound rows.
type Table struct {
	Name    string
	Dataset *hdf5.Dataset
	Rows    int
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*Table, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	chunks := []uint{32768}
	if err := plist.SetChunk(chunks); err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	if compression > 0 {
		if err := plist.SetDeflate(compression); err != nil {
			return nil, &ErrCreateTable{TableName: name, Err: err}
		}
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return &Table{Name: name, Dataset: dset}, nil
}

func writeEntryToTable[T any](table *Table, data T) error {
	array := []T{data}
	return writeArrayToTable(table, &array)
}

// writeArrayToTable appends data at the end of the table.
func writeArrayToTable[T any](table *Table, data *[]T) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("table %s: error creating dataspace: %w", table.Name, err)
	}
	defer dataspace.Close()

	// extend
	rowsInFile := uint(table.Rows)
	newsize := []uint{rowsInFile + length}
	if err := table.Dataset.Resize(newsize); err != nil {
		return fmt.Errorf("table %s: error resizing to %d rows: %w", table.Name, newsize[0], err)
	}
	filespace := table.Dataset.Space()
	defer filespace.Close()

	start := []uint{rowsInFile}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("table %s: error selecting rows: %w", table.Name, err)
	}

	if err := table.Dataset.WriteSubset(data, dataspace, filespace); err != nil {
		return fmt.Errorf("table %s: error writing %d rows: %w", table.Name, length, err)
	}
	table.Rows += int(length)
	return nil
}

func (t *Table) Close() error {
	return t.Dataset.Close()
}
