package trans

import (
	"encoding/binary"

	"github.com/flowguard/dce2smb/internal/alerts"
)

type fakeFileStore struct {
	byKey      map[[3]uint16]*FileEntry
	byFID      map[uint16]*FileEntry
	ipcTIDs    map[uint16]bool
	removedTID []uint16
	aborted    []string
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		byKey:   make(map[[3]uint16]*FileEntry),
		byFID:   make(map[uint16]*FileEntry),
		ipcTIDs: make(map[uint16]bool),
	}
}

// SetIPCTID marks tid as a tree connection to IPC$, for tests exercising
// the named-pipe skip path.
func (f *fakeFileStore) SetIPCTID(tid uint16) {
	f.ipcTIDs[tid] = true
}

func (f *fakeFileStore) IsIPCTID(tid uint16) bool {
	return f.ipcTIDs[tid]
}

func (f *fakeFileStore) Find(uid, tid, fid uint16) (*FileEntry, bool) {
	e, ok := f.byKey[[3]uint16{uid, tid, fid}]
	return e, ok
}

func (f *fakeFileStore) Get(fid uint16) (*FileEntry, bool) {
	e, ok := f.byFID[fid]
	return e, ok
}

func (f *fakeFileStore) Create(entry *FileEntry) {
	f.byKey[[3]uint16{entry.UID, entry.TID, entry.FID}] = entry
	f.byFID[entry.FID] = entry
}

func (f *fakeFileStore) RemoveTID(tid uint16) {
	f.removedTID = append(f.removedTID, tid)
	for k, e := range f.byKey {
		if e.TID == tid {
			delete(f.byKey, k)
			delete(f.byFID, e.FID)
		}
	}
}

func (f *fakeFileStore) AbortFileAPI(sessionID string) {
	f.aborted = append(f.aborted, sessionID)
}

type fakeRPC struct {
	requests  [][]byte
	responses [][]byte
}

func (r *fakeRPC) ProcessRequest(sessionID string, data []byte) error {
	r.requests = append(r.requests, append([]byte(nil), data...))
	return nil
}

func (r *fakeRPC) ProcessResponse(sessionID string, data []byte) error {
	r.responses = append(r.responses, append([]byte(nil), data...))
	return nil
}

type fakeSink struct {
	alerts []alerts.Alert
}

func (s *fakeSink) Raise(a alerts.Alert) { s.alerts = append(s.alerts, a) }

// buildReqWords builds a TRANSACTION/TRANSACTION2 primary word block.
func buildReqWords(tpc, tdc, flags, pcnt, poff, dcnt, doff uint16, setup []uint16) []byte {
	words := make([]byte, 28+len(setup)*2)
	binary.LittleEndian.PutUint16(words[0:2], tpc)
	binary.LittleEndian.PutUint16(words[2:4], tdc)
	binary.LittleEndian.PutUint16(words[10:12], flags)
	binary.LittleEndian.PutUint16(words[18:20], pcnt)
	binary.LittleEndian.PutUint16(words[20:22], poff)
	binary.LittleEndian.PutUint16(words[22:24], dcnt)
	binary.LittleEndian.PutUint16(words[24:26], doff)
	words[26] = uint8(len(setup))
	for i, v := range setup {
		binary.LittleEndian.PutUint16(words[28+i*2:30+i*2], v)
	}
	return words
}

// buildSecWords builds a *_SECONDARY / response word block (2-byte fields).
func buildSecWords(tpc, tdc, pcnt, poff, pdisp, dcnt, doff, ddisp uint16) []byte {
	words := make([]byte, 16)
	binary.LittleEndian.PutUint16(words[0:2], tpc)
	binary.LittleEndian.PutUint16(words[2:4], tdc)
	binary.LittleEndian.PutUint16(words[4:6], pcnt)
	binary.LittleEndian.PutUint16(words[6:8], poff)
	binary.LittleEndian.PutUint16(words[8:10], pdisp)
	binary.LittleEndian.PutUint16(words[10:12], dcnt)
	binary.LittleEndian.PutUint16(words[12:14], doff)
	binary.LittleEndian.PutUint16(words[14:16], ddisp)
	return words
}

// buildNTSecWords builds an NT_TRANSACT_SECONDARY / NT_TRANSACT response
// word block (4-byte fields).
func buildNTSecWords(tpc, tdc, pcnt, poff, pdisp, dcnt, doff, ddisp uint32) []byte {
	words := make([]byte, 36)
	binary.LittleEndian.PutUint32(words[4:8], tpc)
	binary.LittleEndian.PutUint32(words[8:12], tdc)
	binary.LittleEndian.PutUint32(words[12:16], pcnt)
	binary.LittleEndian.PutUint32(words[16:20], poff)
	binary.LittleEndian.PutUint32(words[20:24], pdisp)
	binary.LittleEndian.PutUint32(words[24:28], dcnt)
	binary.LittleEndian.PutUint32(words[28:32], doff)
	binary.LittleEndian.PutUint32(words[32:36], ddisp)
	return words
}

// buildNTReqWords builds an NT_TRANSACT primary word block (4-byte fields).
func buildNTReqWords(tpc, tdc, pcnt, poff, dcnt, doff uint32, function uint16, setupCount uint8) []byte {
	words := make([]byte, 39+int(setupCount)*2)
	binary.LittleEndian.PutUint32(words[4:8], tpc)
	binary.LittleEndian.PutUint32(words[8:12], tdc)
	binary.LittleEndian.PutUint32(words[20:24], pcnt)
	binary.LittleEndian.PutUint32(words[24:28], poff)
	binary.LittleEndian.PutUint32(words[28:32], dcnt)
	binary.LittleEndian.PutUint32(words[32:36], doff)
	words[36] = setupCount
	binary.LittleEndian.PutUint16(words[37:39], function)
	return words
}
