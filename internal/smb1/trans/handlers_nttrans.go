package trans

import (
	"encoding/binary"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

// runNTTransactRequestSSH dispatches a fully reassembled NT_TRANSACT request
// to its subcommand handler.
func (s *Session) runNTTransactRequestSSH(mid uint16, t *Tracker, unicode bool) types.Disposition {
	switch t.Subcom {
	case types.NtTransactCreate:
		return s.handleNTCreateRequest(t, unicode)
	default:
		t.State = StateAwaitResponse
		return types.DispositionFull
	}
}

// runNTTransactResponseSSH dispatches a fully reassembled NT_TRANSACT
// response to its subcommand handler.
func (s *Session) runNTTransactResponseSSH(mid uint16, t *Tracker) types.Disposition {
	switch t.Subcom {
	case types.NtTransactCreate:
		return s.handleNTCreateResponse(t)
	default:
		return types.DispositionFull
	}
}

// NT_TRANSACT_CREATE request parameters. [MS-CIFS] Section 2.2.7.1.1.
//
//	Offset  Size  Field
//	0       4     Flags
//	4       4     RootDirectoryFID
//	8       4     DesiredAccess
//	12      8     AllocationSize
//	20      4     FileAttributes
//	24      4     ShareAccess
//	28      4     CreateDisposition
//	32      4     CreateOptions
//	36      4     NameLength
//	40      4     ImpersonationLevel
//	44      1     SecurityFlags
//	45      *     Name (NameLength bytes, padded to a 2-byte boundary for
//	              Unicode names)
const (
	ntCreateReqAllocSizeOff     = 12
	ntCreateReqFileAttrsOff     = 20
	ntCreateReqCreateOptionsOff = 32
	ntCreateReqNameLenOff       = 36
	ntCreateReqNameOff          = 45
)

func (s *Session) handleNTCreateRequest(t *Tracker, unicode bool) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) < ntCreateReqNameOff {
		return types.DispositionError
	}
	nameLen := binary.LittleEndian.Uint32(params[ntCreateReqNameLenOff : ntCreateReqNameLenOff+4])
	if nameLen > types.MaxPathLen {
		return types.DispositionError
	}
	createOptions := binary.LittleEndian.Uint32(params[ntCreateReqCreateOptionsOff : ntCreateReqCreateOptionsOff+4])

	t.PendingIsIPC = s.Files != nil && s.Files.IsIPCTID(t.TID)
	if !t.PendingIsIPC {
		attrs := binary.LittleEndian.Uint32(params[ntCreateReqFileAttrsOff : ntCreateReqFileAttrsOff+4])
		if types.HasEvasiveFileAttrs(attrs) {
			s.raise(alerts.EvasiveFileAttrs, "NT_TRANSACT", types.SubcommandName(types.FamilyNTTransact, t.Subcom))
		}
		t.PendingFileSize = binary.LittleEndian.Uint64(params[ntCreateReqAllocSizeOff : ntCreateReqAllocSizeOff+8])
	}

	nameOff := ntCreateReqNameOff
	if unicode && nameOff%2 != 0 {
		nameOff++ // two-byte alignment pad before a Unicode name
	}
	end := nameOff + int(nameLen)
	if end > len(params) {
		end = len(params)
	}
	if nameOff < end {
		t.PendingFileName = decodeName(params[nameOff:end], unicode)
	}
	t.PendingSequentialOnly = createOptions&types.CreateOptionSequentialOnly != 0

	t.State = StateAwaitResponse
	return types.DispositionFull
}

// NT_TRANSACT_CREATE response parameters. [MS-CIFS] Section 2.2.7.1.2, plus
// the resource-type/directory fields appended for this engine's bookkeeping.
//
//	Offset  Size  Field
//	0       1     OplockLevel
//	1       1     Reserved
//	2       2     FID
//	4       4     CreateAction
//	...     ...   (timestamps follow)
//	40      4     ExtFileAttributes
//	44      8     EndOfFile
//	...     ...
//	52      2     ResourceType  (0=disk, 1/2=named pipe, 3=printer)
//	54      1     IsDirectory
const (
	ntCreateRespFIDOff          = 2
	ntCreateRespCreateActionOff = 4
	ntCreateRespEOFOff          = 44
	ntCreateRespResourceTypeOff = 52
	ntCreateRespIsDirectoryOff  = 54
	ntCreateRespMinSize         = ntCreateRespIsDirectoryOff + 1

	// createActionOpened is CreateAction==FILE_OPENED: an existing file was
	// opened for read rather than created, superseded, or overwritten.
	createActionOpened = 2
)

func (s *Session) handleNTCreateResponse(t *Tracker) types.Disposition {
	params := t.ParamBuf.Bytes()
	if len(params) < ntCreateRespFIDOff+2 {
		return types.DispositionFull
	}
	fid := binary.LittleEndian.Uint16(params[ntCreateRespFIDOff : ntCreateRespFIDOff+2])

	if !t.PendingIsIPC && len(params) >= ntCreateRespMinSize {
		resourceType := binary.LittleEndian.Uint16(params[ntCreateRespResourceTypeOff : ntCreateRespResourceTypeOff+2])
		isDirectory := params[ntCreateRespIsDirectoryOff] != 0
		if isDirectory || resourceType != 0 {
			// Directory or non-disk resource: no file tracker to maintain.
			if t.PendingSequentialOnly && s.Files != nil {
				s.Files.AbortFileAPI(s.ID)
			}
			return types.DispositionFull
		}
	}

	entry := &FileEntry{
		UID:            t.UID,
		TID:            t.TID,
		FID:            fid,
		IsIPC:          t.PendingIsIPC,
		FileName:       t.PendingFileName,
		SequentialOnly: t.PendingSequentialOnly,
	}
	if !t.PendingIsIPC {
		var size uint64
		if len(params) >= ntCreateRespEOFOff+8 {
			size = binary.LittleEndian.Uint64(params[ntCreateRespEOFOff : ntCreateRespEOFOff+8])
		}
		if len(params) >= ntCreateRespCreateActionOff+4 &&
			binary.LittleEndian.Uint32(params[ntCreateRespCreateActionOff:ntCreateRespCreateActionOff+4]) == createActionOpened {
			entry.FileSize = size
		} else {
			entry.FileSize = t.PendingFileSize
			entry.FileDirection = FileDirectionUpload
		}
	}

	if s.Files != nil {
		if t.PendingSequentialOnly {
			s.Files.AbortFileAPI(s.ID)
		}
		s.Files.Create(entry)
	}
	return types.DispositionFull
}
