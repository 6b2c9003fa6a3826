// Package intake watches a drop folder for link files and submits every link
// they contain.
//
// A link file is a .url or .txt file holding one locator per line. Blank lines
// and lines starting with '#' are skipped. Once a file has been read it is
// renamed with a ".submitted" suffix so it is never picked up twice.
package intake
