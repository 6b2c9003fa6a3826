// Package ytdlp fetches the audio track of a media URL with yt-dlp and
// converts it to a 16 kHz mono WAV ready for transcription.
package ytdlp
