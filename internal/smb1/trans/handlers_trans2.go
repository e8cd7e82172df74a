package trans

import (
	"encoding/binary"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

// runTrans2RequestSSH dispatches a fully reassembled TRANSACTION2 request to
// its subcommand handler.
func (s *Session) runTrans2RequestSSH(mid uint16, t *Tracker, unicode bool) types.Disposition {
	switch t.Subcom {
	case types.Trans2Open2:
		return s.handleOpen2Request(t, unicode)
	case types.Trans2QueryFileInformation:
		return s.handleQueryFileInfoRequest(t)
	case types.Trans2SetFileInformation:
		return s.handleSetFileInfoRequest(t)
	default:
		t.State = StateAwaitResponse
		return types.DispositionFull
	}
}

// runTrans2ResponseSSH dispatches a fully reassembled TRANSACTION2 response
// to its subcommand handler.
func (s *Session) runTrans2ResponseSSH(mid uint16, t *Tracker) types.Disposition {
	switch t.Subcom {
	case types.Trans2Open2:
		return s.handleOpen2Response(t)
	case types.Trans2QueryFileInformation:
		return s.handleQueryFileInfoResponse(t)
	case types.Trans2SetFileInformation:
		return s.handleSetFileInfoResponse(t)
	default:
		return types.DispositionFull
	}
}

// TRANS2_OPEN2 request parameters. [MS-CIFS] Section 2.2.6.1.1.
const (
	open2ReqFileAttrsOff  = 6
	open2ReqAllocSizeOff  = 14
	open2ReqParamsMinSize = 28
	open2ReqNameOff       = open2ReqParamsMinSize
)

func (s *Session) handleOpen2Request(t *Tracker, unicode bool) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) < open2ReqParamsMinSize {
		return types.DispositionError
	}

	t.PendingIsIPC = s.Files != nil && s.Files.IsIPCTID(t.TID)
	if !t.PendingIsIPC {
		attrs := uint32(binary.LittleEndian.Uint16(params[open2ReqFileAttrsOff : open2ReqFileAttrsOff+2]))
		if types.HasEvasiveFileAttrs(attrs) {
			s.raise(alerts.EvasiveFileAttrs, "TRANSACTION2", types.SubcommandName(types.FamilyTransaction2, t.Subcom))
		}
		t.PendingFileSize = uint64(binary.LittleEndian.Uint32(params[open2ReqAllocSizeOff : open2ReqAllocSizeOff+4]))
	}

	if len(params) > open2ReqNameOff {
		t.PendingFileName = stringAt(params[open2ReqNameOff:], unicode)
	}
	t.State = StateAwaitResponse
	return types.DispositionFull
}

// TRANS2_OPEN2 response parameters. [MS-CIFS] Section 2.2.6.1.2.
const (
	open2RespFIDOff         = 0
	open2RespFileAttrsOff   = 2
	open2RespDataSizeOff    = 8
	open2RespFileTypeOff    = 14
	open2RespActionOff      = 18
	open2RespParamsMinSize  = 20
	fileAttrDirectory       = 0x0010
	open2ActionOpenExisting = 0x0001 // Action bit 0: file already existed
)

func (s *Session) handleOpen2Response(t *Tracker) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) < open2RespParamsMinSize {
		return types.DispositionFull
	}
	fid := binary.LittleEndian.Uint16(params[open2RespFIDOff : open2RespFIDOff+2])

	if !t.PendingIsIPC {
		fileAttrs := binary.LittleEndian.Uint16(params[open2RespFileAttrsOff : open2RespFileAttrsOff+2])
		fileType := binary.LittleEndian.Uint16(params[open2RespFileTypeOff : open2RespFileTypeOff+2])
		if fileAttrs&fileAttrDirectory != 0 || fileType != 0 {
			// Directory or non-disk resource (named pipe, printer): no file
			// tracker to maintain.
			return types.DispositionFull
		}
	}

	entry := &FileEntry{
		UID:      t.UID,
		TID:      t.TID,
		FID:      fid,
		IsIPC:    t.PendingIsIPC,
		FileName: t.PendingFileName,
	}
	if !t.PendingIsIPC {
		action := binary.LittleEndian.Uint16(params[open2RespActionOff : open2RespActionOff+2])
		if action&open2ActionOpenExisting != 0 {
			entry.FileSize = uint64(binary.LittleEndian.Uint32(params[open2RespDataSizeOff : open2RespDataSizeOff+4]))
		} else {
			entry.FileSize = t.PendingFileSize
			entry.FileDirection = FileDirectionUpload
		}
	}
	if s.Files != nil {
		s.Files.Create(entry)
	}
	return types.DispositionFull
}

// TRANS2_QUERY_FILE_INFORMATION request parameters: FID(2) + InformationLevel(2).
const (
	queryFileInfoReqFIDOff   = 0
	queryFileInfoReqLevelOff = 2
)

func (s *Session) handleQueryFileInfoRequest(t *Tracker) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) < queryFileInfoReqLevelOff+2 {
		return types.DispositionError
	}
	fid := binary.LittleEndian.Uint16(params[queryFileInfoReqFIDOff : queryFileInfoReqFIDOff+2])

	if s.Files == nil {
		return types.DispositionIgnore
	}
	entry, ok := s.Files.Get(fid)
	if !ok || entry.IsIPC || entry.FileDirection == FileDirectionUpload {
		return types.DispositionIgnore
	}

	t.FID = fid
	t.InfoLevel = binary.LittleEndian.Uint16(params[queryFileInfoReqLevelOff : queryFileInfoReqLevelOff+2])
	t.State = StateAwaitResponse
	return types.DispositionFull
}

func (s *Session) handleQueryFileInfoResponse(t *Tracker) types.Disposition {
	if s.Files == nil || t.DataBuf == nil {
		return types.DispositionFull
	}
	entry, ok := s.Files.Get(t.FID)
	if !ok {
		return types.DispositionFull
	}
	data := t.DataBuf.Bytes()
	var size uint64
	var found bool
	switch t.InfoLevel {
	case types.InfoStandard, types.InfoQueryEaSize:
		if len(data) >= 16 {
			size = uint64(binary.LittleEndian.Uint32(data[12:16]))
			found = true
		}
	case types.InfoQueryFileStandardInfo:
		if len(data) >= 16 {
			size = binary.LittleEndian.Uint64(data[8:16])
			found = true
		}
	case types.InfoQueryFileAllInfo:
		if len(data) >= 56 {
			size = binary.LittleEndian.Uint64(data[48:56])
			found = true
		}
	case types.InfoPTFileStandardInfo, types.InfoPTFileStreamInfo:
		if len(data) >= 16 {
			size = binary.LittleEndian.Uint64(data[8:16])
			found = true
		}
	case types.InfoPTFileAllInfo:
		if len(data) >= 56 {
			size = binary.LittleEndian.Uint64(data[48:56])
			found = true
		}
	case types.InfoPTNetworkOpenInfo:
		if len(data) >= 48 {
			size = binary.LittleEndian.Uint64(data[40:48])
			found = true
		}
	}
	if found {
		entry.FileSize = size
	}
	return types.DispositionFull
}

// TRANS2_SET_FILE_INFORMATION request parameters: FID(2) + InformationLevel(2).
const (
	setFileInfoReqFIDOff       = 0
	setFileInfoReqLevelOff     = 2
	setFileBasicInfoMinLen     = 40
	setFileBasicInfoAttrsOff   = 32
	setFileEndOfFileDataMinLen = 8
)

func (s *Session) handleSetFileInfoRequest(t *Tracker) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) < setFileInfoReqLevelOff+2 {
		return types.DispositionError
	}
	fid := binary.LittleEndian.Uint16(params[setFileInfoReqFIDOff : setFileInfoReqFIDOff+2])
	level := binary.LittleEndian.Uint16(params[setFileInfoReqLevelOff : setFileInfoReqLevelOff+2])
	data := t.DataBuf.Bytes()

	if level == types.InfoSetFileBasicInfo && len(data) >= setFileBasicInfoMinLen {
		attrs := binary.LittleEndian.Uint32(data[setFileBasicInfoAttrsOff : setFileBasicInfoAttrsOff+4])
		if types.HasEvasiveFileAttrs(attrs) {
			s.raise(alerts.EvasiveFileAttrs, "TRANSACTION2", types.SubcommandName(types.FamilyTransaction2, t.Subcom))
		}
		return types.DispositionIgnore
	}
	if level != types.InfoSetFileEndOfFile {
		return types.DispositionIgnore
	}

	if s.Files == nil {
		return types.DispositionIgnore
	}
	entry, ok := s.Files.Get(fid)
	if !ok || entry.IsIPC || entry.FileDirection == FileDirectionDownload || entry.BytesProcessed != 0 {
		return types.DispositionIgnore
	}
	if len(data) < setFileEndOfFileDataMinLen {
		return types.DispositionError
	}

	t.FID = fid
	t.InfoLevel = level
	t.PendingFileSize = binary.LittleEndian.Uint64(data[0:8])
	t.State = StateAwaitResponse
	return types.DispositionFull
}

func (s *Session) handleSetFileInfoResponse(t *Tracker) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) >= 2 && binary.LittleEndian.Uint16(params[0:2]) == 0 && s.Files != nil {
		if entry, ok := s.Files.Get(t.FID); ok {
			entry.FileSize = t.PendingFileSize
		}
	}
	return types.DispositionFull
}

// stringAt decodes a null-terminated name from the start of buf.
func stringAt(buf []byte, unicode bool) string {
	return decodeName(buf, unicode)
}
