package sdo

// processIncoming dispatches a received frame to the rx handler matching
// the server's current state, starting a new transfer from stateIdle
// based on the command specifier bits in byte 0.
func (s *SDOServer) processIncoming(rx SDOMessage) error {
	if rx.raw[0] == 0x80 {
		// Client aborted, drop back to idle without responding
		s.state = stateIdle
		return nil
	}

	switch s.state {
	case stateIdle:
		ccs := (rx.raw[0] >> 5) & 0x07
		switch ccs {
		case 1: // initiate download
			s.state = stateDownloadInitiateReq
			if err := s.updateStreamer(rx); err != nil {
				return err
			}
			return s.rxDownloadInitiate(rx)
		case 2: // initiate upload
			s.state = stateUploadInitiateReq
			if err := s.updateStreamer(rx); err != nil {
				return err
			}
			return s.rxUploadInitiate(rx)
		case 5: // initiate block upload
			s.state = stateUploadBlkInitiateReq
			if err := s.updateStreamer(rx); err != nil {
				return err
			}
			return s.rxUploadBlockInitiate(rx)
		case 6: // initiate block download
			s.state = stateDownloadBlkInitiateReq
			if err := s.updateStreamer(rx); err != nil {
				return err
			}
			return s.rxDownloadBlockInitiate(rx)
		default:
			return AbortCmd
		}

	case stateDownloadSegmentReq:
		return s.rxDownloadSegment(rx)

	case stateUploadSegmentReq:
		return s.rxUploadSegment(rx)

	case stateDownloadBlkSubblockReq:
		return s.rxDownloadBlockSubBlock(rx)

	case stateDownloadBlkEndReq:
		return s.rxDownloadBlockEnd(rx)

	case stateUploadBlkInitiateReq2, stateUploadBlkSubblockCrsp:
		return s.rxUploadSubBlock(rx)

	default:
		return AbortCmd
	}
}

func (s *SDOServer) processOutgoing() error {
	var err error

	s.txBuffer.Data = [8]byte{0}

	switch s.state {
	case stateDownloadInitiateRsp:
		s.txDownloadInitiate()

	case stateDownloadSegmentRsp:
		s.txDownloadSegment()

	case stateUploadInitiateRsp:
		s.txUploadInitiate()

	case stateUploadExpeditedRsp:
		s.txUploadExpedited()

	case stateUploadSegmentRsp:
		err = s.txUploadSegment()

	case stateDownloadBlkInitiateRsp:
		s.txDownloadBlockInitiate()

	case stateDownloadBlkSubblockRsp:
		err = s.txDownloadBlockSubBlock()

	case stateDownloadBlkEndRsp:
		s.txDownloadBlockEnd()

	case stateUploadBlkInitiateRsp:
		s.txUploadBlockInitiate()

	case stateUploadBlkSubblockSreq:
		err = s.txUploadBlockSubBlock()
		if err != nil {
			return err
		}
		s.processOutgoing()

	case stateUploadBlkEndSreq:
		s.txUploadBlockEnd()
	}
	return err
}

func (s *SDOServer) txAbort(err error) {
	if sdoAbort, ok := err.(SDOAbortCode); !ok {
		s.logger.Error("[TX] Abort internal error : unknown abort code", "err", err)
		s.SendAbort(AbortGeneral)
	} else {
		s.SendAbort(sdoAbort)
	}
	s.state = stateIdle
}
