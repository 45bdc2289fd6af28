// Package hexfile loads the Intel-HEX subset used by the board firmware
// into a fixed-size flash image.
//
// Only three record types are understood:
//
//	00 data               bytes written at address+offset
//	02 extended segment   offset = value << 4 for following records
//	03 start address      kept verbatim, informational only
//
// Any other record type is skipped. Checksums are not validated.
package hexfile
