// Package frame encodes commands into transmit-ready frames and decodes raw
// device responses into typed results.
//
// One Codec exists per dialect:
//
//	crc16  [addr][fc][register:2][data:2][crc:2]            (RTU style)
//	sum    [CC][addr][fc][param][00][DD][sum8][01]
//	sum16  [CC][addr][fc][payload...][DD][sum lo][sum hi]
//	ascii  "/1" code [param] "R"                            (line protocol)
//
// Codecs are stateless and safe for concurrent use. They perform no I/O and
// never retry; every failure is returned as an *Error wrapping one of the
// package sentinels.
package frame
