package common

import (
	"bytes"
	"encoding/binary"
)

// StatInfo describes one directory entry and the inode behind it.
type StatInfo struct {
	Name    string
	Size    uint32
	Sectors uint32 // data sectors, not counting index sectors
	Type    FileType
	Inode   uint32
	Links   uint32
}

// MarshalBinary encodes the record in its fixed layout: a NUL padded name
// of StatNameLen bytes followed by size, sectors, type, inode and links as
// little-endian 32-bit integers.
func (st *StatInfo) MarshalBinary() ([]byte, error) {
	if len(st.Name) >= StatNameLen {
		return nil, ENAMETOOLONG
	}
	buf := make([]byte, StatRecordSize)
	copy(buf, st.Name)
	fields := []uint32{st.Size, st.Sectors, uint32(st.Type), st.Inode, st.Links}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[StatNameLen+4*i:], v)
	}
	return buf, nil
}

func (st *StatInfo) UnmarshalBinary(data []byte) error {
	if len(data) < StatRecordSize {
		return EINVAL
	}
	name := data[:StatNameLen]
	if end := bytes.IndexByte(name, 0); end >= 0 {
		name = name[:end]
	}
	st.Name = string(name)
	le := binary.LittleEndian
	st.Size = le.Uint32(data[StatNameLen:])
	st.Sectors = le.Uint32(data[StatNameLen+4:])
	st.Type = FileType(le.Uint32(data[StatNameLen+8:]))
	st.Inode = le.Uint32(data[StatNameLen+12:])
	st.Links = le.Uint32(data[StatNameLen+16:])
	return nil
}
